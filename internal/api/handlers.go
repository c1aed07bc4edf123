package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/tipstark/internal/domain"
	"github.com/rovshanmuradov/tipstark/internal/tipping"
)

const sessionKey = "session"

type connectRequest struct {
	Connector string `json:"connector" binding:"required"`
}

type tipRequest struct {
	Recipient string          `json:"recipient" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Message   string          `json:"message"`
}

type profileRequest struct {
	// Address defaults to the connected wallet.
	Address string `json:"address"`
	domain.ProfileInput
}

type reconcileResponse struct {
	Checked   int `json:"checked"`
	Confirmed int `json:"confirmed"`
	Failed    int `json:"failed"`
	Errors    int `json:"errors"`
	Pending   int `json:"pending"`
}

// session loads the session named by :id into the context.
func (s *Server) session() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := s.manager.Get(c.Param("id"))
		if err != nil {
			s.fail(c, err)
			return
		}
		c.Set(sessionKey, sess)
		c.Next()
	}
}

func current(c *gin.Context) *tipping.Session {
	return c.MustGet(sessionKey).(*tipping.Session)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": s.manager.Len()})
}

func (s *Server) handleOpenSession(c *gin.Context) {
	key := uuid.NewString()
	s.manager.Open(key)
	c.JSON(http.StatusCreated, gin.H{"id": key})
}

func (s *Server) handleCloseSession(c *gin.Context) {
	key := current(c).Key
	s.manager.Close(key)
	s.dropLimiter(key)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleConnect(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess := current(c)
	if err := sess.Connect(c.Request.Context(), req.Connector); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.Wallet.State())
}

func (s *Server) handleDisconnect(c *gin.Context) {
	sess := current(c)
	sess.Wallet.Disconnect()
	c.JSON(http.StatusOK, sess.Wallet.State())
}

func (s *Server) handleWallet(c *gin.Context) {
	c.JSON(http.StatusOK, current(c).Wallet.State())
}

func (s *Server) handleListTips(c *gin.Context) {
	c.JSON(http.StatusOK, current(c).Ledger.Tips())
}

func (s *Server) handleSubmitTip(c *gin.Context) {
	var req tipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess := current(c)
	tip, err := sess.Ledger.SubmitTip(c.Request.Context(), req.Recipient, req.Amount, req.Message)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.logger.Info("Tip accepted", zap.String("session", sess.Key), zap.String("tipID", tip.ID))
	c.JSON(http.StatusCreated, tip)
}

// handleReconcile runs a reconciliation pass now. Receipt errors are
// reported in the counts, not as a failed request.
func (s *Server) handleReconcile(c *gin.Context) {
	res, err := current(c).Ledger.Reconcile(c.Request.Context())
	if err != nil {
		s.logger.Debug("Reconcile finished with errors", zap.Error(err))
	}
	c.JSON(http.StatusOK, reconcileResponse(res))
}

func (s *Server) handleSaveProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	state := current(c).Wallet.State()
	if !state.Connected {
		s.fail(c, domain.ErrNotConnected)
		return
	}
	address := req.Address
	if address == "" {
		address = state.Address
	}
	creator, err := s.manager.Directory().SaveProfile(c.Request.Context(), state.Address, address, req.ProfileInput)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, creator)
}

func (s *Server) handleSessionStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.manager.Stats(current(c).Key))
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.manager.Stats(""))
}

func (s *Server) handleListCreators(c *gin.Context) {
	creators, err := s.manager.Directory().Search(c.Query("q"), c.Query("category"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, creators)
}

func (s *Server) handleGetCreator(c *gin.Context) {
	creator, err := s.manager.Directory().Get(c.Param("address"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, creator)
}
