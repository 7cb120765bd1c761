package transfer

// Stage is a step of the transfer pipeline.
type Stage int

const (
	StageInit Stage = iota
	StageResolvingAudio
	StageResolvingText
	StageSanitizing
	StageSynthesizing
	StageResponding
)

func (s Stage) String() string {
	switch s {
	case StageInit:
		return "init"
	case StageResolvingAudio:
		return "resolving_audio"
	case StageResolvingText:
		return "resolving_text"
	case StageSanitizing:
		return "sanitizing"
	case StageSynthesizing:
		return "synthesizing"
	case StageResponding:
		return "responding"
	default:
		return "unknown"
	}
}
