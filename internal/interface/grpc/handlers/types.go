package handlers

type enterRequest struct {
	Player string `json:"player"`
	Amount string `json:"amount"`
}

type performUpkeepRequest struct {
	Data string `json:"data"`
}

type fulfillRequest struct {
	RequestId   string   `json:"requestId"`
	RandomWords []string `json:"randomWords"`
}

type checkUpkeepResponse struct {
	UpkeepNeeded bool   `json:"upkeepNeeded"`
	PerformData  string `json:"performData"`
}

type performUpkeepResponse struct {
	RequestId string `json:"requestId"`
}

type pendingRequest struct {
	RequestId string `json:"requestId"`
	RoundId   uint64 `json:"roundId"`
	Timestamp int64  `json:"timestamp"`
}

type infoResponse struct {
	State              string          `json:"state"`
	EntryFee           string          `json:"entryFee"`
	Interval           int64           `json:"interval"`
	RecentWinner       string          `json:"recentWinner"`
	NumOfPlayers       int             `json:"numOfPlayers"`
	LatestTimestamp    int64           `json:"latestTimestamp"`
	RoundId            uint64          `json:"roundId"`
	Balance            string          `json:"balance"`
	PendingRequest     *pendingRequest `json:"pendingRequest,omitempty"`
	RandomnessProvider string          `json:"randomnessProvider"`
	CallbackGasLimit   uint32          `json:"callbackGasLimit"`
	Confirmations      uint16          `json:"confirmations"`
}

type playerResponse struct {
	Index  int    `json:"index"`
	Player string `json:"player"`
}

type entry struct {
	Player    string `json:"player"`
	Amount    string `json:"amount"`
	Timestamp int64  `json:"timestamp"`
}

type roundResponse struct {
	Id                uint64  `json:"id"`
	EntryFee          string  `json:"entryFee"`
	Entries           []entry `json:"entries"`
	Balance           string  `json:"balance"`
	StartingTimestamp int64   `json:"startingTimestamp"`
	EndingTimestamp   int64   `json:"endingTimestamp"`
	RequestId         string  `json:"requestId"`
	RandomWord        string  `json:"randomWord"`
	WinnerIndex       int     `json:"winnerIndex"`
	Winner            string  `json:"winner"`
	PayoutTxid        string  `json:"payoutTxid"`
}

type listRoundsResponse struct {
	Rounds []uint64 `json:"rounds"`
}

type balanceResponse struct {
	Account string `json:"account"`
	Balance string `json:"balance"`
}

type errorResponse struct {
	Error string `json:"error"`
}
