package peer

// Ban score increments for misbehavior, following the teacher's
// banscores.go convention of one named constant per offense rather than
// a single generic penalty.
const (
	BanScoreInvalidBlock       = 100
	BanScoreInvalidTransaction = 100
	BanScoreInvalidHeader      = 100
	BanScoreEmptyLocator       = 100
	BanScoreUnrequestedMessage = 100
	BanScoreMalformedMessage   = 10
	BanScoreStallTimeout       = 1
	BanScoreDuplicateHandshake = 1

	// MaxBanScore disconnects and bans a peer once its accumulated score
	// reaches this value.
	MaxBanScore = 100
)
