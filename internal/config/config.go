// Package config loads, validates and persists ytbatch settings.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"ytbatch/internal/ytdlp"
)

const (
	AppName        = "ytbatch"
	ConfigName     = "ytbatch"
	ConfigType     = "yml"
	EnvPrefix      = "YTBATCH"
	DefaultAddr    = "127.0.0.1:8765"
	MinParallel    = 1
	MaxParallel    = 10
	writeProbeName = ".ytbatch_write_test"
)

var ErrInvalidSettings = errors.New("invalid settings")

var supportedAudioFormats = map[string]bool{
	"mp3": true, "m4a": true, "aac": true, "opus": true,
	"vorbis": true, "flac": true, "wav": true, "alac": true, "best": true,
}

type Binaries struct {
	YTDLP  string `mapstructure:"yt_dlp" json:"yt_dlp"`
	FFmpeg string `mapstructure:"ffmpeg" json:"ffmpeg"`
	Dir    string `mapstructure:"dir" json:"dir"`
}

type Server struct {
	Addr string `mapstructure:"addr" json:"addr"`
}

type Playlist struct {
	Limit int `mapstructure:"limit" json:"limit"`
}

// Config maps ytbatch.yml.
type Config struct {
	OutputFolder string   `mapstructure:"output_folder" json:"output_folder"`
	MaxParallel  int      `mapstructure:"max_parallel" json:"max_parallel"`
	AudioFormat  string   `mapstructure:"audio_format" json:"audio_format"`
	Binaries     Binaries `mapstructure:"binaries" json:"binaries"`
	Server       Server   `mapstructure:"server" json:"server"`
	Playlist     Playlist `mapstructure:"playlist" json:"playlist"`
}

func (c Config) ResolveOptions() ytdlp.ResolveOptions {
	return ytdlp.ResolveOptions{
		YTDLPPath:  c.Binaries.YTDLP,
		FFmpegPath: c.Binaries.FFmpeg,
		BinaryDir:  c.Binaries.Dir,
	}
}

func Default() Config {
	return Config{
		OutputFolder: defaultOutputFolder(),
		MaxParallel:  1,
		AudioFormat:  ytdlp.DefaultAudioFormat,
		Binaries:     Binaries{Dir: defaultBinaryDir()},
		Server:       Server{Addr: DefaultAddr},
		Playlist:     Playlist{Limit: ytdlp.DefaultPlaylistLimit},
	}
}

func defaultOutputFolder() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, "Downloads", AppName)
	}
	if abs, err := filepath.Abs("downloads"); err == nil {
		return abs
	}
	return "downloads"
}

func defaultBinaryDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, AppName, "binaries")
	}
	return ""
}

// DefaultConfigPath is where Save writes when no file was loaded.
func DefaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, AppName, ConfigName+"."+ConfigType)
	}
	return ConfigName + "." + ConfigType
}

type Options struct {
	// ConfigFile pins one file. It need not exist yet.
	ConfigFile string
	// SearchPaths is used when ConfigFile is empty. Defaults to the working
	// directory and the user config directory.
	SearchPaths []string
}

// Store is the live settings holder shared by the CLI and the HTTP server.
type Store struct {
	mu   sync.RWMutex
	v    *viper.Viper
	cfg  Config
	path string
}

func Load(opts Options) (*Store, error) {
	v := viper.New()
	v.SetConfigType(ConfigType)
	if p := strings.TrimSpace(opts.ConfigFile); p != "" {
		v.SetConfigFile(p)
	} else {
		v.SetConfigName(ConfigName)
		paths := opts.SearchPaths
		if len(paths) == 0 {
			paths = []string{"."}
			if dir, err := os.UserConfigDir(); err == nil && dir != "" {
				paths = append(paths, filepath.Join(dir, AppName))
			}
		}
		for _, p := range paths {
			v.AddConfigPath(p)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	path := v.ConfigFileUsed()
	if path == "" {
		path = DefaultConfigPath()
	}
	return &Store{v: v, cfg: cfg, path: path}, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("output_folder", d.OutputFolder)
	v.SetDefault("max_parallel", d.MaxParallel)
	v.SetDefault("audio_format", d.AudioFormat)
	v.SetDefault("binaries.yt_dlp", d.Binaries.YTDLP)
	v.SetDefault("binaries.ffmpeg", d.Binaries.FFmpeg)
	v.SetDefault("binaries.dir", d.Binaries.Dir)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("playlist.limit", d.Playlist.Limit)
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return Normalize(cfg), nil
}

// Normalize trims values and fills empty fields with defaults. Range checks
// are left to Validate.
func Normalize(c Config) Config {
	d := Default()
	c.OutputFolder = strings.TrimSpace(c.OutputFolder)
	if c.OutputFolder == "" {
		c.OutputFolder = d.OutputFolder
	}
	c.AudioFormat = strings.ToLower(strings.TrimSpace(c.AudioFormat))
	if c.AudioFormat == "" {
		c.AudioFormat = d.AudioFormat
	}
	c.Binaries.YTDLP = strings.TrimSpace(c.Binaries.YTDLP)
	c.Binaries.FFmpeg = strings.TrimSpace(c.Binaries.FFmpeg)
	c.Binaries.Dir = strings.TrimSpace(c.Binaries.Dir)
	c.Server.Addr = strings.TrimSpace(c.Server.Addr)
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Playlist.Limit <= 0 {
		c.Playlist.Limit = d.Playlist.Limit
	}
	return c
}

// Validate applies the save-time rules: output folder absolute, creatable
// and writable; parallelism 1..10; a known audio format.
func Validate(c Config) error {
	if c.MaxParallel < MinParallel || c.MaxParallel > MaxParallel {
		return fmt.Errorf("%w: max_parallel must be between %d and %d", ErrInvalidSettings, MinParallel, MaxParallel)
	}
	if !supportedAudioFormats[c.AudioFormat] {
		return fmt.Errorf("%w: unsupported audio_format %q", ErrInvalidSettings, c.AudioFormat)
	}
	return ValidateOutputFolder(c.OutputFolder)
}

// ValidateOutputFolder creates path if needed and proves it writable with a
// probe file.
func ValidateOutputFolder(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: output_folder is required", ErrInvalidSettings)
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("%w: output_folder must be an absolute path", ErrInvalidSettings)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("%w: cannot create output folder: %v", ErrInvalidSettings, err)
	}
	probe := filepath.Join(path, writeProbeName)
	if err := os.WriteFile(probe, []byte("test"), 0o644); err != nil {
		return fmt.Errorf("%w: output folder is not writable: %v", ErrInvalidSettings, err)
	}
	_ = os.Remove(probe)
	return nil
}

func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Path is the file Save writes.
func (s *Store) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

// Update applies fn to a copy of the current settings, validates the result
// and persists it. The live settings change only if both succeed.
func (s *Store) Update(fn func(*Config)) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg
	fn(&next)
	next = Normalize(next)
	if err := Validate(next); err != nil {
		return s.cfg, err
	}
	if err := s.writeLocked(next); err != nil {
		return s.cfg, err
	}
	s.cfg = next
	return next, nil
}

func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(s.cfg)
}

// writeLocked goes through a scratch viper so the live one keeps no
// overrides that would mask later edits picked up by Watch.
func (s *Store) writeLocked(c Config) error {
	w := viper.New()
	w.SetConfigType(ConfigType)
	w.Set("output_folder", c.OutputFolder)
	w.Set("max_parallel", c.MaxParallel)
	w.Set("audio_format", c.AudioFormat)
	w.Set("binaries.yt_dlp", c.Binaries.YTDLP)
	w.Set("binaries.ffmpeg", c.Binaries.FFmpeg)
	w.Set("binaries.dir", c.Binaries.Dir)
	w.Set("server.addr", c.Server.Addr)
	w.Set("playlist.limit", c.Playlist.Limit)

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := w.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("write config %s: %w", s.path, err)
	}
	return nil
}

// Watch reloads settings when the config file changes on disk and passes
// the new value to onChange. It reports false when there is no file to
// watch yet.
func (s *Store) Watch(onChange func(Config)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(s.path); err != nil {
		return false
	}
	if s.v.ConfigFileUsed() == "" {
		s.v.SetConfigFile(s.path)
		if err := s.v.ReadInConfig(); err != nil {
			return false
		}
	}
	s.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		s.mu.Lock()
		cfg, err := decode(s.v)
		if err == nil {
			s.cfg = cfg
		}
		s.mu.Unlock()
		if err == nil && onChange != nil {
			onChange(cfg)
		}
	})
	s.v.WatchConfig()
	return true
}
