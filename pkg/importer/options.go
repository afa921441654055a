package importer

// Options controls one batch run
type Options struct {
	// Execute writes to the graph; otherwise the run is a dry run
	Execute bool
	// BatchSize is the number of entities or relationships per write transaction (default: 50)
	BatchSize int
	// Agent names the Agent node every created entity is linked to with CREATED_BY
	Agent string

	FiguresOnly            bool
	WorksOnly              bool
	SkipDuplicateCheck     bool
	SkipIdentityValidation bool
}

const (
	DefaultBatchSize = 50
	DefaultAgent     = "fictotum-importer"
)

// DefaultOptions returns a dry run with default sizing
func DefaultOptions() Options {
	return Options{
		BatchSize: DefaultBatchSize,
		Agent:     DefaultAgent,
	}
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Agent == "" {
		o.Agent = DefaultAgent
	}
	return o
}
