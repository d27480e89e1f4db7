package domain

const RaffleTopic = "raffle"

func (e RoundStarted) GetTopic() string        { return RaffleTopic }
func (e EntryRecorded) GetTopic() string       { return RaffleTopic }
func (e DrawRequested) GetTopic() string       { return RaffleTopic }
func (e RandomnessFulfilled) GetTopic() string { return RaffleTopic }
func (e WinnerPicked) GetTopic() string        { return RaffleTopic }

func (e RoundStarted) GetType() EventType        { return EventTypeRoundStarted }
func (e EntryRecorded) GetType() EventType       { return EventTypeEntryRecorded }
func (e DrawRequested) GetType() EventType       { return EventTypeDrawRequested }
func (e RandomnessFulfilled) GetType() EventType { return EventTypeRandomnessFulfilled }
func (e WinnerPicked) GetType() EventType        { return EventTypeWinnerPicked }

type RoundStarted struct {
	RoundId   uint64
	EntryFee  uint64
	Timestamp int64
}

type EntryRecorded struct {
	RoundId   uint64
	Player    string
	Amount    uint64
	Timestamp int64
}

type DrawRequested struct {
	RoundId   uint64
	RequestId string
	Timestamp int64
}

type RandomnessFulfilled struct {
	RoundId     uint64
	RequestId   string
	RandomWords []string
	Timestamp   int64
}

type WinnerPicked struct {
	RoundId     uint64
	RequestId   string
	Winner      string
	WinnerIndex int
	Amount      uint64
	Timestamp   int64
}
