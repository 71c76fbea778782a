package pngrepair

import (
	"fmt"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
)

////////////////////////////////////////////////////////////////////////////////

// Policy decides what happens when a stage finds something it can repair.
type Policy int

const (
	// Accept applies every repair the engine finds.
	Accept Policy = iota
	// AutoFix behaves like Accept; it exists so callers can tell a user who
	// passed "yes" apart from the default.
	AutoFix
	// Reject declines every repair. A bad signature aborts the run.
	Reject
	// AskUser consults Options.Ask for each repair.
	AskUser
)

func (p Policy) String() string {
	switch p {
	case Accept:
		return "accept"
	case AutoFix:
		return "autofix"
	case Reject:
		return "reject"
	case AskUser:
		return "ask"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// Stage names the pipeline step that produced a finding or error.
type Stage string

const (
	StageSignature Stage = "signature"
	StageIHDR      Stage = "IHDR"
	StageAncillary Stage = "ancillary"
	StageIDAT      Stage = "IDAT"
	StageIEND      Stage = "IEND"
	StageDefilter  Stage = "defilter"
)

// Action records what the engine did about a finding.
type Action string

const (
	ActionNone      Action = "none"
	ActionFixed     Action = "fixed"
	ActionRewritten Action = "rewritten"
	ActionKept      Action = "kept"
	ActionDeclined  Action = "declined"
	ActionReported  Action = "reported"
	ActionDropped   Action = "dropped"
)

// Finding is one diagnostic produced during a repair run. Observed and
// Expected are hex strings where bytes are involved.
type Finding struct {
	Stage    Stage
	Offset   int
	Observed string
	Expected string
	Action   Action
	Err      error
}

func (f Finding) String() string {
	s := fmt.Sprintf("[%s] offset 0x%X: %s", f.Stage, f.Offset, f.Action)
	if f.Err != nil {
		s += ": " + f.Err.Error()
	}
	if f.Observed != "" || f.Expected != "" {
		s += fmt.Sprintf(" (observed %s, expected %s)", f.Observed, f.Expected)
	}
	return s
}

const (
	defaultMaxIHDRCandidates = 1 << 24
	defaultMaxCombinations   = 1 << 20
)

// Options configures a Repairer.
type Options struct {
	Policy Policy
	// Ask is called for every repair when Policy is AskUser. A nil Ask
	// declines.
	Ask func(Finding) bool

	// MaxIHDRCandidates bounds the width/height search.
	MaxIHDRCandidates int
	// MaxCombinations bounds the IDAT line-feed search per chunk.
	MaxCombinations int
	// Workers is the number of goroutines evaluating search candidates.
	Workers int

	// KeepUnrepairedChecksums keeps the original bytes of a chunk whose
	// search failed. By default the chunk is rewritten so that its length
	// and CRC agree with the data that is kept.
	KeepUnrepairedChecksums bool

	Logger log.Interface
}

func (o Options) withDefaults() Options {
	if o.MaxIHDRCandidates <= 0 {
		o.MaxIHDRCandidates = defaultMaxIHDRCandidates
	}
	if o.MaxCombinations <= 0 {
		o.MaxCombinations = defaultMaxCombinations
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.Logger == nil {
		o.Logger = &log.Logger{Handler: discard.New(), Level: log.InfoLevel}
	}
	return o
}

// allow resolves the policy for a single proposed repair.
func (o Options) allow(f Finding) bool {
	switch o.Policy {
	case Accept, AutoFix:
		return true
	case AskUser:
		return o.Ask != nil && o.Ask(f)
	}
	return false
}
