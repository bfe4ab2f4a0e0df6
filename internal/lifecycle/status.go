package lifecycle

// BotStatus is the lifecycle vocabulary of one bot instance. External
// consumers key off these exact strings.
type BotStatus string

const (
	BotUnknown            BotStatus = "unknown"
	BotInitializing       BotStatus = "initializing"
	BotLaunching          BotStatus = "launching"
	BotJoining            BotStatus = "joining"
	BotInWaitingRoom      BotStatus = "in_waiting_room"
	BotInCallNotRecording BotStatus = "in_call_not_recording"
	BotJoined             BotStatus = "joined"
	BotCallEnded          BotStatus = "call_ended"
	BotDone               BotStatus = "done"
	BotFatal              BotStatus = "fatal"
)

// JoinStatus is the narrower vocabulary used by the join sub-procedure.
type JoinStatus string

const (
	JoinLaunching     JoinStatus = "launching"
	JoinJoining       JoinStatus = "joining"
	JoinInWaitingRoom JoinStatus = "in_waiting_room"
	JoinJoined        JoinStatus = "joined"
	JoinDone          JoinStatus = "done"
	JoinFatal         JoinStatus = "fatal"
)

// joinToBot correlates join statuses with the bot-level vocabulary. A join
// "joined" only means the bot is in the call; the bot itself reports joined
// once captions are flowing.
var joinToBot = map[JoinStatus]BotStatus{
	JoinLaunching:     BotLaunching,
	JoinJoining:       BotJoining,
	JoinInWaitingRoom: BotInWaitingRoom,
	JoinJoined:        BotInCallNotRecording,
	JoinFatal:         BotFatal,
}

// BotStatusFor maps a join status onto the bot vocabulary. ok is false for
// join statuses that have no bot-level counterpart (join "done").
func BotStatusFor(s JoinStatus) (BotStatus, bool) {
	b, ok := joinToBot[s]
	return b, ok
}

func (s BotStatus) terminal() bool  { return s == BotFatal }
func (s JoinStatus) terminal() bool { return s == JoinFatal }
