// Package rpc exposes a simulated chain over HTTP with a full-node style
// interface.
package rpc

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"smartcoin.dev/node/consensus"
	"smartcoin.dev/node/node"
)

const maxBundleBytes = 8 << 20

type Server struct {
	chain  *node.Chain
	log    *zap.Logger
	engine *gin.Engine
}

func NewServer(chain *node.Chain, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	s := &Server{chain: chain, log: logger, engine: gin.New()}
	s.engine.Use(gin.Recovery(), GinLogger(logger))

	s.engine.POST("/push_tx", s.pushTx)
	s.engine.POST("/get_coin_records_by_puzzle_hash", s.getCoinRecordsByPuzzleHash)
	s.engine.POST("/get_coin_record_by_name", s.getCoinRecordByName)
	s.engine.POST("/get_puzzle_and_solution", s.getPuzzleAndSolution)
	s.engine.POST("/farm_block", s.farmBlock)
	s.engine.POST("/pass_time", s.passTime)
	s.engine.GET("/get_blockchain_state", s.getBlockchainState)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("rpc server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func fail(c *gin.Context, status int, err error) {
	resp := errorResponse{Error: err.Error()}
	if code, ok := consensus.CodeOf(err); ok {
		resp.ErrorCode = string(code)
	}
	c.JSON(status, resp)
}

func (s *Server) pushTx(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBundleBytes+1))
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if len(raw) > maxBundleBytes {
		fail(c, http.StatusRequestEntityTooLarge, errors.New("bundle too large"))
		return
	}
	bundle, err := consensus.DecodeBundle(raw)
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	id, err := bundle.BundleID()
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	status, err := s.chain.Submit(c.Request.Context(), bundle)
	resp := PushTxResponse{Success: err == nil, Status: status, BundleID: id}
	if err != nil {
		resp.Error = err.Error()
		if code, ok := consensus.CodeOf(err); ok {
			resp.ErrorCode = string(code)
		}
		s.log.Debug("push_tx failed", zap.Stringer("bundle_id", id), zap.Error(err))
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getCoinRecordsByPuzzleHash(c *gin.Context) {
	var req coinRecordsByPuzzleHashRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	recs := s.chain.GetCoinRecordsByPuzzleHash(req.PuzzleHash, req.IncludeSpentCoins)
	if recs == nil {
		recs = []consensus.CoinRecord{}
	}
	c.JSON(http.StatusOK, coinRecordsResponse{Success: true, CoinRecords: recs})
}

func (s *Server) getCoinRecordByName(c *gin.Context) {
	var req coinNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	rec, ok := s.chain.GetCoinRecordByName(req.Name)
	if !ok {
		fail(c, http.StatusNotFound, errors.New("coin record not found"))
		return
	}
	c.JSON(http.StatusOK, coinRecordResponse{Success: true, CoinRecord: rec})
}

func (s *Server) getPuzzleAndSolution(c *gin.Context) {
	var req puzzleAndSolutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	cs, ok, err := s.chain.GetCoinSpend(req.CoinID)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		fail(c, http.StatusNotFound, errors.New("coin not spent"))
		return
	}
	c.JSON(http.StatusOK, puzzleAndSolutionResponse{Success: true, CoinSolution: *cs})
}

func (s *Server) farmBlock(c *gin.Context) {
	var req farmBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if req.Blocks == 0 {
		req.Blocks = 1
	}
	ph := s.chain.RewardPuzzleHash()
	if req.PuzzleHash != nil {
		ph = *req.PuzzleHash
	}
	blocks, err := s.chain.Advance(c.Request.Context(), req.Blocks, ph)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, farmBlockResponse{Success: true, Blocks: blocks})
}

func (s *Server) passTime(c *gin.Context) {
	var req passTimeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if err := s.chain.PassTime(req.Seconds); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	s.getBlockchainState(c)
}

func (s *Server) getBlockchainState(c *gin.Context) {
	c.JSON(http.StatusOK, blockchainStateResponse{Success: true, BlockchainState: s.chain.State()})
}
