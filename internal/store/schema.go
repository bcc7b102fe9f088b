// Package store persists the dashboard's user configuration (symbols,
// per-symbol levels and overlays, global toggles) in an external
// key-value store, and records bars/alerts to SQLite.
package store

import (
	"encoding/json"
	"fmt"

	"fibwatch/internal/model"
)

// SchemaVersion is the current persisted-state shape. Migrate upgrades
// older shapes in place at load time, backfilling newly introduced fields
// without discarding user data.
const SchemaVersion = 2

// PersistedState is the canonical user configuration owned by the
// dashboard and serialized as one JSON document.
type PersistedState struct {
	Version        int                         `json:"version"`
	Symbols        []string                    `json:"symbols"`
	Timeframe      string                      `json:"timeframe"`
	HeikinAshiView bool                        `json:"heikinAshiView"` // render HA candles
	HeikinAshiRSI  bool                        `json:"heikinAshiRsi"`  // RSI gate reads HA closes
	SpeechEnabled  bool                        `json:"speechEnabled"`
	Levels         map[string][]model.FibLevel `json:"levels"`   // keyed by symbol
	Overlays       map[string]model.OverlaySet `json:"overlays"` // keyed by symbol
}

// Defaults returns the documented fallback configuration.
func Defaults() PersistedState {
	s := PersistedState{
		Version:   SchemaVersion,
		Symbols:   []string{"BTCUSDT"},
		Timeframe: "1m",
		Levels:    make(map[string][]model.FibLevel),
		Overlays:  make(map[string]model.OverlaySet),
	}
	for _, sym := range s.Symbols {
		s.Levels[sym] = model.DefaultLevels(sym)
		s.Overlays[sym] = model.DefaultOverlays()
	}
	return s
}

// Migrate decodes a stored document and upgrades it to SchemaVersion.
// Fields added since the document was written are backfilled from
// defaults; user data already present is kept. A document that cannot be
// decoded at all returns an error and the caller falls back to Defaults.
func Migrate(raw []byte) (PersistedState, error) {
	var s PersistedState
	if err := json.Unmarshal(raw, &s); err != nil {
		return PersistedState{}, fmt.Errorf("persisted state: %w", err)
	}
	if s.Version > SchemaVersion {
		return PersistedState{}, fmt.Errorf("persisted state: version %d is newer than supported %d", s.Version, SchemaVersion)
	}
	fromVersion := s.Version

	if len(s.Symbols) == 0 {
		s.Symbols = []string{"BTCUSDT"}
	}
	if s.Timeframe == "" {
		s.Timeframe = "1m"
	}
	if s.Levels == nil {
		s.Levels = make(map[string][]model.FibLevel)
	}
	if s.Overlays == nil {
		s.Overlays = make(map[string]model.OverlaySet)
	}

	for _, sym := range s.Symbols {
		levels, ok := s.Levels[sym]
		if !ok {
			s.Levels[sym] = model.DefaultLevels(sym)
		} else {
			for i := range levels {
				migrateLevel(&levels[i], sym, fromVersion)
			}
			s.Levels[sym] = levels
		}

		ov, ok := s.Overlays[sym]
		if !ok {
			s.Overlays[sym] = model.DefaultOverlays()
		} else {
			migrateOverlaySet(&ov, fromVersion)
			s.Overlays[sym] = ov
		}
	}

	s.Version = SchemaVersion
	return s, nil
}

func marshalState(s PersistedState) ([]byte, error) {
	s.Version = SchemaVersion
	return json.Marshal(s)
}

// migrateLevel backfills fields levels gained after v1. The zero-value
// backfills only apply to pre-v2 documents: an absent field decodes as
// zero there, while a current document stores every field and a zero is
// the user's own value.
func migrateLevel(l *model.FibLevel, symbol string, fromVersion int) {
	if l.Symbol == "" {
		l.Symbol = symbol
	}
	if l.ID == "" {
		l.ID = model.LevelID(l.Symbol, l.Ratio)
	}
	if l.RSIOp != model.RSIGte && l.RSIOp != model.RSILte {
		l.RSIOp = model.RSIGte
	}
	if fromVersion < 2 && l.RSIThreshold == 0 {
		l.RSIThreshold = 50
	}
	if l.Color == "" {
		l.Color = model.DefaultLevelColors[0]
	}
}

func migrateOverlaySet(s *model.OverlaySet, fromVersion int) {
	for _, cfg := range []*model.OverlayConfig{&s.VWAP, &s.EMA9, &s.EMA20, &s.EMA200} {
		cfg.Smooth = model.ClampSmooth(cfg.Smooth)
		if cfg.Opacity < 0 || cfg.Opacity > 1 || (fromVersion < 2 && cfg.Opacity == 0) {
			cfg.Opacity = 0.9
		}
		if cfg.Color == "" {
			cfg.Color = "#787b86"
		}
	}
}
