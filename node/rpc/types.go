package rpc

import (
	"smartcoin.dev/node/consensus"
	"smartcoin.dev/node/node"
	"smartcoin.dev/node/node/store"
)

// ContentTypeCBOR is the media type of a CBOR encoded spend bundle.
const ContentTypeCBOR = "application/cbor"

type errorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorCode string `json:"error_code,omitempty"`
}

type PushTxResponse struct {
	Success   bool                 `json:"success"`
	Status    node.InclusionStatus `json:"status"`
	BundleID  consensus.Hash       `json:"bundle_id"`
	Error     string               `json:"error,omitempty"`
	ErrorCode string               `json:"error_code,omitempty"`
}

type coinRecordsByPuzzleHashRequest struct {
	PuzzleHash        consensus.Hash `json:"puzzle_hash"`
	IncludeSpentCoins bool           `json:"include_spent_coins"`
}

type coinRecordsResponse struct {
	Success     bool                   `json:"success"`
	CoinRecords []consensus.CoinRecord `json:"coin_records"`
}

type coinNameRequest struct {
	Name consensus.Hash `json:"name"`
}

type coinRecordResponse struct {
	Success    bool                 `json:"success"`
	CoinRecord consensus.CoinRecord `json:"coin_record"`
}

type puzzleAndSolutionRequest struct {
	CoinID consensus.Hash `json:"coin_id"`
}

type puzzleAndSolutionResponse struct {
	Success      bool                `json:"success"`
	CoinSolution consensus.CoinSpend `json:"coin_solution"`
}

type farmBlockRequest struct {
	Blocks     int             `json:"blocks"`
	PuzzleHash *consensus.Hash `json:"puzzle_hash,omitempty"`
}

type farmBlockResponse struct {
	Success bool                 `json:"success"`
	Blocks  []*store.BlockRecord `json:"blocks"`
}

type passTimeRequest struct {
	Seconds uint64 `json:"seconds"`
}

type blockchainStateResponse struct {
	Success         bool                 `json:"success"`
	BlockchainState node.BlockchainState `json:"blockchain_state"`
}
