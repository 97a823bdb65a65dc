package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Data       DataConfig       `yaml:"data" mapstructure:"data"`
	AOI        AOIConfig        `yaml:"aoi" mapstructure:"aoi"`
	Geocode    GeocodeConfig    `yaml:"geocode" mapstructure:"geocode"`
	Catalog    CatalogConfig    `yaml:"catalog" mapstructure:"catalog"`
	Storage    StorageConfig    `yaml:"storage" mapstructure:"storage"`
	Raster     RasterConfig     `yaml:"raster" mapstructure:"raster"`
	Roads      RoadsConfig      `yaml:"roads" mapstructure:"roads"`
	Occurrence OccurrenceConfig `yaml:"occurrence" mapstructure:"occurrence"`
	HTTP       HTTPConfig       `yaml:"http" mapstructure:"http"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// DataConfig configures the on-disk directory layout. Empty sub-directories
// are derived from Dir.
type DataConfig struct {
	Dir          string `yaml:"dir" mapstructure:"dir"`
	RawDir       string `yaml:"raw_dir" mapstructure:"raw_dir"`
	InterimDir   string `yaml:"interim_dir" mapstructure:"interim_dir"`
	ProcessedDir string `yaml:"processed_dir" mapstructure:"processed_dir"`
}

// Raw returns the directory for downloaded artifacts.
func (d DataConfig) Raw() string {
	if d.RawDir != "" {
		return d.RawDir
	}
	return filepath.Join(d.Dir, "raw")
}

// Interim returns the directory for intermediate artifacts.
func (d DataConfig) Interim() string {
	if d.InterimDir != "" {
		return d.InterimDir
	}
	return filepath.Join(d.Dir, "interim")
}

// Processed returns the directory for derived artifacts such as the AOI.
func (d DataConfig) Processed() string {
	if d.ProcessedDir != "" {
		return d.ProcessedDir
	}
	return filepath.Join(d.Dir, "processed")
}

// AOIConfig configures area-of-interest resolution.
type AOIConfig struct {
	BufferKM       float64 `yaml:"buffer_km" mapstructure:"buffer_km"`
	BufferSegments int     `yaml:"buffer_segments" mapstructure:"buffer_segments"`
	BoundaryFile   string  `yaml:"boundary_file" mapstructure:"boundary_file"`
}

// GeocodeConfig configures the Nominatim geocoder.
type GeocodeConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Email       string  `yaml:"email" mapstructure:"email"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts int     `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// CatalogConfig configures the STAC tile catalog.
type CatalogConfig struct {
	URL             string   `yaml:"url" mapstructure:"url"`
	CollectionHints []string `yaml:"collection_hints" mapstructure:"collection_hints"`
	PageLimit       int      `yaml:"page_limit" mapstructure:"page_limit"`
	MaxPages        int      `yaml:"max_pages" mapstructure:"max_pages"`
	TimeoutSecs     int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// StorageConfig configures the anonymous object-store fallback.
type StorageConfig struct {
	Endpoint      string  `yaml:"endpoint" mapstructure:"endpoint"`
	Bucket        string  `yaml:"bucket" mapstructure:"bucket"`
	Prefix        string  `yaml:"prefix" mapstructure:"prefix"`
	Extension     string  `yaml:"extension" mapstructure:"extension"`
	NamePrefilter bool    `yaml:"name_prefilter" mapstructure:"name_prefilter"`
	TileDegrees   float64 `yaml:"tile_degrees" mapstructure:"tile_degrees"`
}

// RasterConfig configures remote raster reads and clip output.
type RasterConfig struct {
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	BlockSizeKB int `yaml:"block_size_kb" mapstructure:"block_size_kb"`
}

// Timeout returns the per-request timeout for remote raster reads.
func (r RasterConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSecs) * time.Second
}

// RoadsConfig configures the Overpass road network download.
type RoadsConfig struct {
	OverpassURL     string `yaml:"overpass_url" mapstructure:"overpass_url"`
	MaxPolyVertices int    `yaml:"max_poly_vertices" mapstructure:"max_poly_vertices"`
	TimeoutSecs     int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	ExportShapefile bool   `yaml:"export_shapefile" mapstructure:"export_shapefile"`
}

// OccurrenceConfig configures the GBIF occurrence download.
type OccurrenceConfig struct {
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	Taxon            string  `yaml:"taxon" mapstructure:"taxon"`
	Limit            int     `yaml:"limit" mapstructure:"limit"`
	PageSize         int     `yaml:"page_size" mapstructure:"page_size"`
	BBoxToleranceDeg float64 `yaml:"bbox_tolerance_deg" mapstructure:"bbox_tolerance_deg"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// HTTPConfig configures the shared HTTP fetcher.
type HTTPConfig struct {
	UserAgent  string `yaml:"user_agent" mapstructure:"user_agent"`
	MaxRetries int    `yaml:"max_retries" mapstructure:"max_retries"`
	BackoffMs  int    `yaml:"backoff_ms" mapstructure:"backoff_ms"`
}

// StoreConfig configures the run ledger backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MOBIODIV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data.dir", "data")
	v.SetDefault("data.raw_dir", "")
	v.SetDefault("data.interim_dir", "")
	v.SetDefault("data.processed_dir", "")
	v.SetDefault("aoi.buffer_km", 20.0)
	v.SetDefault("aoi.buffer_segments", 32)
	v.SetDefault("aoi.boundary_file", "")
	v.SetDefault("geocode.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.email", "")
	v.SetDefault("geocode.rate_limit", 1.0)
	v.SetDefault("geocode.timeout_secs", 30)
	v.SetDefault("geocode.max_attempts", 3)
	v.SetDefault("catalog.url", "https://services.terrascope.be/stac")
	v.SetDefault("catalog.collection_hints", []string{"worldcover", "WorldCover", "VITO"})
	v.SetDefault("catalog.page_limit", 100)
	v.SetDefault("catalog.max_pages", 10)
	v.SetDefault("catalog.timeout_secs", 30)
	v.SetDefault("storage.endpoint", "https://s3.eu-central-1.amazonaws.com")
	v.SetDefault("storage.bucket", "esa-worldcover")
	v.SetDefault("storage.prefix", "v200/2021/map")
	v.SetDefault("storage.extension", ".tif")
	v.SetDefault("storage.name_prefilter", true)
	v.SetDefault("storage.tile_degrees", 3.0)
	v.SetDefault("raster.timeout_secs", 120)
	v.SetDefault("raster.block_size_kb", 256)
	v.SetDefault("roads.overpass_url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("roads.max_poly_vertices", 500)
	v.SetDefault("roads.timeout_secs", 180)
	v.SetDefault("roads.export_shapefile", false)
	v.SetDefault("occurrence.base_url", "https://api.gbif.org/v1")
	v.SetDefault("occurrence.taxon", "Aves")
	v.SetDefault("occurrence.limit", 2000)
	v.SetDefault("occurrence.page_size", 300)
	v.SetDefault("occurrence.bbox_tolerance_deg", 1e-6)
	v.SetDefault("occurrence.timeout_secs", 60)
	v.SetDefault("http.user_agent", "mobiodiv/1.0 (+https://github.com/sells-group/mobiodiv)")
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_ms", 1000)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.AOI.BufferKM < 0 {
		return eris.Errorf("config: aoi.buffer_km must be >= 0, got %g", c.AOI.BufferKM)
	}
	if c.AOI.BufferSegments < 4 || c.AOI.BufferSegments%4 != 0 {
		return eris.Errorf("config: aoi.buffer_segments must be a positive multiple of 4, got %d", c.AOI.BufferSegments)
	}
	if c.Occurrence.Limit <= 0 {
		return eris.Errorf("config: occurrence.limit must be > 0, got %d", c.Occurrence.Limit)
	}
	if c.Occurrence.PageSize <= 0 || c.Occurrence.PageSize > 300 {
		return eris.Errorf("config: occurrence.page_size must be in 1..300, got %d", c.Occurrence.PageSize)
	}
	if c.Storage.TileDegrees <= 0 {
		return eris.Errorf("config: storage.tile_degrees must be > 0, got %g", c.Storage.TileDegrees)
	}
	if c.Roads.MaxPolyVertices < 4 {
		return eris.Errorf("config: roads.max_poly_vertices must be >= 4, got %d", c.Roads.MaxPolyVertices)
	}
	if c.HTTP.MaxRetries < 1 {
		return eris.Errorf("config: http.max_retries must be >= 1, got %d", c.HTTP.MaxRetries)
	}
	if c.Geocode.MaxAttempts < 1 {
		return eris.Errorf("config: geocode.max_attempts must be >= 1, got %d", c.Geocode.MaxAttempts)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres", "none":
	default:
		return eris.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required for the postgres driver")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
