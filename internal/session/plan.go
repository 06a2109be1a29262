package session

// StageKind identifies one step of a learning session.
type StageKind string

// Stage kinds in plan order.
const (
	StagePredict          StageKind = "predict"
	StageRead             StageKind = "read"
	StageBreak            StageKind = "break"
	StageBrainDump        StageKind = "brain-dump"
	StageAIPrediction     StageKind = "ai-prediction"
	StageCompareAndReveal StageKind = "compare-and-reveal"
	StageGapAnalysis      StageKind = "gap-analysis"
	StageFinalWriting     StageKind = "final-writing"
)

// Writing reports whether the stage captures free text from the learner.
// Writing stages are timed but never advance on their own.
func (k StageKind) Writing() bool {
	switch k {
	case StagePredict, StageBrainDump, StageAIPrediction, StageGapAnalysis, StageFinalWriting:
		return true
	}
	return false
}

// AutoAdvance reports whether expiry moves the session to the next stage.
func (k StageKind) AutoAdvance() bool {
	return k == StageRead || k == StageBreak
}

// Stage is one planned step and its allotted time.
type Stage struct {
	Kind    StageKind `json:"kind"`
	Seconds int       `json:"seconds"`
}

// Timed reports whether the stage runs a countdown.
func (s Stage) Timed() bool {
	return s.Kind != StageCompareAndReveal
}

// Reading cycle shape, in minutes.
const (
	CycleMinutes   = 30
	ReadingMinutes = 25
	BreakMinutes   = CycleMinutes - ReadingMinutes

	// FallbackMinutes is the preset used for unsupported totals
	FallbackMinutes = 30
)

type preset struct {
	predict, brainDump, aiPrediction, gap, final int
}

func (p preset) total() int {
	return p.predict + p.brainDump + p.aiPrediction + p.gap + p.final
}

var presets = map[int]preset{
	15:  {1, 3, 2, 2, 7},
	30:  {2, 5, 3, 5, 10},
	45:  {4, 6, 3, 5, 12},
	60:  {5, 7, 3, 5, 15},
	90:  {7, 7, 3, 5, 20},
	120: {10, 10, 3, 5, 25},
}

// SupportedMinutes reports whether total has its own preset.
func SupportedMinutes(total int) bool {
	_, ok := presets[total]
	return ok
}

// Plan is the fixed stage sequence of one session.
type Plan struct {
	TotalMinutes int     `json:"total_minutes"`
	Stages       []Stage `json:"stages"`
}

// BuildPlan computes the stage sequence for a session of total minutes.
// Unsupported totals use the 30 minute preset. Reading time is whatever the
// writing stages leave over, split into 25 minute reads separated by
// 5 minute breaks; a shorter remainder becomes a final read.
func BuildPlan(total int) Plan {
	p, ok := presets[total]
	if !ok {
		total = FallbackMinutes
		p = presets[FallbackMinutes]
	}

	stages := []Stage{{Kind: StagePredict, Seconds: p.predict * 60}}
	stages = append(stages, readingStages(total-p.total())...)
	stages = append(stages,
		Stage{Kind: StageBrainDump, Seconds: p.brainDump * 60},
		Stage{Kind: StageAIPrediction, Seconds: p.aiPrediction * 60},
		Stage{Kind: StageCompareAndReveal},
		Stage{Kind: StageGapAnalysis, Seconds: p.gap * 60},
		Stage{Kind: StageFinalWriting, Seconds: p.final * 60},
	)

	return Plan{TotalMinutes: total, Stages: stages}
}

func readingStages(minutes int) []Stage {
	var reads []int
	for minutes >= CycleMinutes {
		reads = append(reads, ReadingMinutes)
		minutes -= CycleMinutes
	}
	if minutes > 0 {
		reads = append(reads, minutes)
	}

	var stages []Stage
	for i, m := range reads {
		if i > 0 {
			stages = append(stages, Stage{Kind: StageBreak, Seconds: BreakMinutes * 60})
		}
		stages = append(stages, Stage{Kind: StageRead, Seconds: m * 60})
	}
	return stages
}

// ReadingSeconds sums the time planned for reading.
func (p Plan) ReadingSeconds() int {
	n := 0
	for _, s := range p.Stages {
		if s.Kind == StageRead {
			n += s.Seconds
		}
	}
	return n
}

// remainingReads counts the read stages after index i.
func (p Plan) remainingReads(i int) int {
	n := 0
	for _, s := range p.Stages[i+1:] {
		if s.Kind == StageRead {
			n++
		}
	}
	return n
}
