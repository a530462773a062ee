package consensus

// CoinAnnouncementID is the id an ASSERT_COIN_ANNOUNCEMENT must name.
func CoinAnnouncementID(coinID Hash, msg []byte) Hash {
	return stdHash(coinID[:], msg)
}

// PuzzleAnnouncementID is the id an ASSERT_PUZZLE_ANNOUNCEMENT must name.
func PuzzleAnnouncementID(puzzleHash Hash, msg []byte) Hash {
	return stdHash(puzzleHash[:], msg)
}

// checkAnnouncements runs the two bundle-wide passes. Producers and consumers are
// collected as sets, so the order of spends inside the bundle never matters.
func checkAnnouncements(outcomes []*SpendOutcome) error {
	coinAnn := make(map[Hash]struct{})
	puzzleAnn := make(map[Hash]struct{})
	for _, o := range outcomes {
		for _, id := range o.CoinAnnouncements {
			coinAnn[id] = struct{}{}
		}
		for _, id := range o.PuzzleAnnouncements {
			puzzleAnn[id] = struct{}{}
		}
	}
	for _, o := range outcomes {
		for _, id := range o.AssertedCoinAnnouncements {
			if _, ok := coinAnn[id]; !ok {
				return conderr(ERR_ASSERT_ANNOUNCE_CONSUMED, o.CoinID, ASSERT_COIN_ANNOUNCEMENT, "coin announcement "+id.String()+" not produced")
			}
		}
		for _, id := range o.AssertedPuzzleAnnouncements {
			if _, ok := puzzleAnn[id]; !ok {
				return conderr(ERR_ASSERT_ANNOUNCE_CONSUMED, o.CoinID, ASSERT_PUZZLE_ANNOUNCEMENT, "puzzle announcement "+id.String()+" not produced")
			}
		}
	}
	return nil
}
