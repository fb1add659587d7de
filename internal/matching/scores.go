package matching

// Field weights used to rank near misses. A more specific field weighs more,
// so an expectation that agrees on path and body ranks above one that only
// agrees on method.
const (
	ScoreMethod        = 10
	ScorePath          = 15
	ScorePathParams    = 8
	ScoreQuery         = 6
	ScoreHeaders       = 8
	ScoreCookies       = 5
	ScoreBody          = 20
	ScoreKeepAlive     = 1
	ScoreSecure        = 2
	ScoreSocketAddress = 2
)
