package config

// NetworkConfig says where to load the transit network from and how
// to filter it.
type NetworkConfig struct {
	// http(s) URL, zip archive or directory.
	Source          string            `yaml:"source" validate:"required"`
	Headers         map[string]string `yaml:"headers"`
	ServiceDate     string            `yaml:"service_date" validate:"omitempty,len=8,numeric"`
	RouteTypes      []int             `yaml:"route_types" validate:"dive,gte=0,lte=12"`
	MaxWalkDistance float64           `yaml:"max_walk_distance" validate:"gte=0"`
	TimeoutSeconds  int               `yaml:"timeout_seconds" validate:"gte=0"`
	MaxSizeMB       int               `yaml:"max_size_mb" validate:"gte=0"`
}

// RoutingConfig holds the profiler parameters.
type RoutingConfig struct {
	Targets        []string `yaml:"targets" validate:"required,min=1,dive,required"`
	TransferMargin float64  `yaml:"transfer_margin" validate:"gte=0"`
	WalkSpeed      float64  `yaml:"walk_speed" validate:"gt=0"`
	WindowStart    float64  `yaml:"window_start" validate:"gte=0"`
	WindowEnd      float64  `yaml:"window_end" validate:"gtefield=WindowStart"`
	Workers        int      `yaml:"workers" validate:"gte=1"`
}

// StorageConfig selects the journey store.
type StorageConfig struct {
	Backend     string `yaml:"backend" validate:"oneof=memory sqlite postgres"`
	Directory   string `yaml:"directory" validate:"required_if=Backend sqlite"`
	DatabaseURL string `yaml:"database_url" validate:"required_if=Backend postgres"`
}

type PublishConfig struct {
	NATSURL       string `yaml:"nats_url" validate:"omitempty,url"`
	SubjectPrefix string `yaml:"subject_prefix"`
	LogSubjects   bool   `yaml:"log_subjects"`
}

type MetricsConfig struct {
	// Listen address, e.g. ":9102". Empty disables the server.
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json text"`
}

// Config is the root configuration structure
type Config struct {
	Network NetworkConfig `yaml:"network" validate:"required"`
	Routing RoutingConfig `yaml:"routing" validate:"required"`
	Storage StorageConfig `yaml:"storage"`
	Publish PublishConfig `yaml:"publish"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}
