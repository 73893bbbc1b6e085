package persistence

import "time"

// Game is one row of the games table:
// games(id, created_at, source_file, event, site, round, white, black, result)
type Game struct {
	ID         uint64    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	SourceFile string    `json:"source_file"`
	Event      string    `json:"event"`
	Site       string    `json:"site"`
	Round      string    `json:"round"`
	White      string    `json:"white"`
	Black      string    `json:"black"`
	Result     string    `json:"result"`
	Termination string   `json:"termination"`
}

// MoveRecord is one row of the moves table:
// moves(id, game_id, move_uci, fen_after, white_clock_s, black_clock_s, eval_centipawns)
type MoveRecord struct {
	GameID         uint64 `json:"game_id"`
	Seq            uint64 `json:"seq"`
	MoveUCI        string `json:"move_uci"`
	FENAfter       string `json:"fen_after"`
	WhiteClockS    int    `json:"white_clock_s"`
	BlackClockS    int    `json:"black_clock_s"`
	EvalCentipawns int    `json:"eval_centipawns"`
}
