package loader

// Config holds paged loader configuration.
type Config struct {
	RowsRoute        string
	CountRoute       string
	RecordRoute      string
	BlockSize        int
	NeighborDepth    int
	IDField          string
	MaxSelectionRows int

	// MaxViewportBlocks bounds the blocks one viewport may fan out to.
	MaxViewportBlocks int
	// MaxBlockSize bounds caller-chosen block sizes. Never below BlockSize.
	MaxBlockSize      int
}

const (
	defaultMaxViewportBlocks = 64
	defaultMaxBlockSize      = 1000
)

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.RowsRoute == "" {
		c.RowsRoute = "/query"
	}

	if c.CountRoute == "" {
		c.CountRoute = c.RowsRoute
	}

	if c.RecordRoute == "" {
		c.RecordRoute = c.RowsRoute
	}

	if c.BlockSize <= 0 {
		c.BlockSize = 100
	}

	if c.MaxViewportBlocks <= 0 {
		c.MaxViewportBlocks = defaultMaxViewportBlocks
	}

	if c.MaxBlockSize <= 0 {
		c.MaxBlockSize = defaultMaxBlockSize
	}

	c.MaxBlockSize = max(c.MaxBlockSize, c.BlockSize)

	if c.IDField == "" {
		c.IDField = "id"
	}

	return c
}
