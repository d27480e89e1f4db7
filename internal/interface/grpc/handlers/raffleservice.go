package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ark-network/raffle/internal/core/application"
	"github.com/ark-network/raffle/internal/core/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const listenerBufferSize = 64

func init() {
	gin.SetMode(gin.ReleaseMode)
}

type handler struct {
	*gin.Engine
	svc application.Service

	fulfillerToken   string
	trustedFulfiller string

	eventsBroker *broker[[]domain.Event]
}

// NewHandler returns the http api of the raffle. Fulfillments are accepted
// only from callers presenting fulfillerToken, and are attributed to
// trustedFulfiller.
func NewHandler(
	svc application.Service, fulfillerToken, trustedFulfiller string,
) http.Handler {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	h := &handler{
		Engine:           router,
		svc:              svc,
		fulfillerToken:   fulfillerToken,
		trustedFulfiller: trustedFulfiller,
		eventsBroker:     newBroker[[]domain.Event](),
	}

	v1 := h.Group("/v1")
	v1.POST("/raffle/enter", h.enter)
	v1.GET("/raffle/upkeep", h.checkUpkeep)
	v1.POST("/raffle/upkeep", h.performUpkeep)
	v1.POST("/raffle/fulfill", h.fulfillRandomWords)
	v1.GET("/raffle/info", h.getInfo)
	v1.GET("/raffle/players/:index", h.getPlayer)
	v1.GET("/rounds", h.listRounds)
	v1.GET("/rounds/:id", h.getRound)
	v1.GET("/wallet/:account", h.getBalance)
	v1.GET("/events", h.getEventStream)

	go h.listenToEvents()

	return h
}

func (h *handler) enter(c *gin.Context) {
	var req enterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Errorf("invalid request: %s", err))
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		badRequest(c, err)
		return
	}

	if err := h.svc.Enter(c.Request.Context(), req.Player, amount); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func (h *handler) checkUpkeep(c *gin.Context) {
	data, err := parseData(c.Query("data"))
	if err != nil {
		badRequest(c, err)
		return
	}

	needed, performData, err := h.svc.CheckUpkeep(c.Request.Context(), data)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, checkUpkeepResponse{
		UpkeepNeeded: needed,
		PerformData:  hex.EncodeToString(performData),
	})
}

func (h *handler) performUpkeep(c *gin.Context) {
	var req performUpkeepRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, fmt.Errorf("invalid request: %s", err))
		return
	}
	data, err := parseData(req.Data)
	if err != nil {
		badRequest(c, err)
		return
	}

	requestId, err := h.svc.PerformUpkeep(c.Request.Context(), data)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, performUpkeepResponse{RequestId: requestId})
}

func (h *handler) fulfillRandomWords(c *gin.Context) {
	var req fulfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Errorf("invalid request: %s", err))
		return
	}
	words, err := parseRandomWords(req.RandomWords)
	if err != nil {
		badRequest(c, err)
		return
	}

	caller := h.authenticate(c.GetHeader("Authorization"))
	if err := h.svc.FulfillRandomWords(
		c.Request.Context(), caller, req.RequestId, words,
	); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func (h *handler) getInfo(c *gin.Context) {
	info, err := h.svc.GetInfo(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}

	var pending *pendingRequest
	if req := info.PendingRequest; req != nil {
		pending = &pendingRequest{
			RequestId: req.RequestId,
			RoundId:   req.RoundId,
			Timestamp: req.Timestamp,
		}
	}
	c.JSON(http.StatusOK, infoResponse{
		State:              info.State,
		EntryFee:           strconv.FormatUint(info.EntryFee, 10),
		Interval:           info.Interval,
		RecentWinner:       info.RecentWinner,
		NumOfPlayers:       info.NumOfPlayers,
		LatestTimestamp:    info.LatestTimestamp,
		RoundId:            info.RoundId,
		Balance:            strconv.FormatUint(info.Balance, 10),
		PendingRequest:     pending,
		RandomnessProvider: info.RandomnessProvider,
		CallbackGasLimit:   info.CallbackGasLimit,
		Confirmations:      info.Confirmations,
	})
}

func (h *handler) getPlayer(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c, fmt.Errorf("invalid player index"))
		return
	}

	player, err := h.svc.GetPlayer(c.Request.Context(), index)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, playerResponse{Index: index, Player: player})
}

func (h *handler) listRounds(c *gin.Context) {
	after, err := parseTimestamp(c.Query("after"))
	if err != nil {
		badRequest(c, err)
		return
	}
	before, err := parseTimestamp(c.Query("before"))
	if err != nil {
		badRequest(c, err)
		return
	}

	ids, err := h.svc.ListRounds(c.Request.Context(), after, before)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, listRoundsResponse{Rounds: ids})
}

func (h *handler) getRound(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, fmt.Errorf("invalid round id"))
		return
	}

	round, err := h.svc.GetRound(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toRoundResponse(*round))
}

func (h *handler) getBalance(c *gin.Context) {
	account := c.Param("account")
	balance, err := h.svc.GetBalance(c.Request.Context(), account)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, balanceResponse{
		Account: account,
		Balance: strconv.FormatUint(balance, 10),
	})
}

func (h *handler) getEventStream(c *gin.Context) {
	id := uuid.NewString()
	h.eventsBroker.pushListener(&listener[[]domain.Event]{
		id: id,
		ch: make(chan []domain.Event, listenerBufferSize),
	})
	defer h.eventsBroker.removeListener(id)

	ch, err := h.eventsBroker.getListenerChannel(id)
	if err != nil {
		fail(c, err)
		return
	}

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case events, ok := <-ch:
			if !ok {
				return false
			}
			for _, event := range events {
				c.SSEvent(event.GetType().String(), event)
			}
			return true
		}
	})
}

// listenToEvents forwards the events of the app service to the stream
// listeners until the service is stopped.
func (h *handler) listenToEvents() {
	for events := range h.svc.GetEventsChannel(context.Background()) {
		if dropped := h.eventsBroker.publish(events); dropped > 0 {
			log.Warnf("%d event stream listeners are lagging behind", dropped)
		}
	}
	h.eventsBroker.closeAll()
}

func (h *handler) authenticate(header string) string {
	if len(h.fulfillerToken) <= 0 {
		return ""
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.fulfillerToken)) != 1 {
		return ""
	}
	return h.trustedFulfiller
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"status": c.Writer.Status(),
		}).Trace("served request")
	}
}

func fail(c *gin.Context, err error) {
	status := toStatusCode(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).Error("failed to serve request")
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
}

func toStatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrInsufficientEntryFee),
		errors.Is(err, domain.ErrInvalidPlayer),
		errors.Is(err, domain.ErrMissingRandomWords),
		errors.Is(err, domain.ErrPlayerIndexOutRange):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrCallerNotTrusted):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrUnknownRequest),
		errors.Is(err, domain.ErrRoundNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRaffleNotOpen),
		errors.Is(err, domain.ErrUpkeepNotNeeded):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTransferFailed):
		return http.StatusBadGateway
	case errors.Is(err, application.ErrRaffleNotInitialized):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func parseAmount(amount string) (uint64, error) {
	if len(amount) <= 0 {
		return 0, fmt.Errorf("missing amount")
	}
	value, err := strconv.ParseUint(amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %s", amount)
	}
	return value, nil
}

func parseData(data string) ([]byte, error) {
	buf, err := hex.DecodeString(strings.TrimPrefix(data, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid data, must be hex encoded")
	}
	return buf, nil
}

func parseRandomWords(words []string) ([]*big.Int, error) {
	if len(words) <= 0 {
		return nil, fmt.Errorf("%w: missing random words", domain.ErrMissingRandomWords)
	}
	parsed := make([]*big.Int, 0, len(words))
	for _, w := range words {
		word, ok := new(big.Int).SetString(w, 10)
		if !ok {
			return nil, fmt.Errorf("invalid random word %s", w)
		}
		parsed = append(parsed, word)
	}
	return parsed, nil
}

func parseTimestamp(ts string) (int64, error) {
	if len(ts) <= 0 {
		return 0, nil
	}
	value, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid timestamp %s", ts)
	}
	return value, nil
}

func toRoundResponse(round domain.RoundRecord) roundResponse {
	entries := make([]entry, 0, len(round.Entries))
	for _, e := range round.Entries {
		entries = append(entries, entry{
			Player:    e.Player,
			Amount:    strconv.FormatUint(e.Amount, 10),
			Timestamp: e.Timestamp,
		})
	}
	return roundResponse{
		Id:                round.Id,
		EntryFee:          strconv.FormatUint(round.EntryFee, 10),
		Entries:           entries,
		Balance:           strconv.FormatUint(round.Balance, 10),
		StartingTimestamp: round.StartingTimestamp,
		EndingTimestamp:   round.EndingTimestamp,
		RequestId:         round.RequestId,
		RandomWord:        round.RandomWord,
		WinnerIndex:       round.WinnerIndex,
		Winner:            round.Winner,
		PayoutTxid:        round.PayoutTxid,
	}
}
