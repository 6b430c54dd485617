package config

import (
	_ "embed"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

var (
	//go:embed default/config.yaml
	defaultConfigData []byte
)

const (
	ConfigurationName = "config.yaml"
	LogsDirName       = "session_logs"
	PrivateKeyName    = "private_key"
	AppLogName        = "app.log"
)

type Configuration struct {
	configFs afero.Fs

	// Prompt is printed before each line read.
	Prompt string `json:"prompt"`
	// MaxLineLength caps a single line of input, longer lines are truncated.
	MaxLineLength int `json:"max_line_length" validate:"gte=0"`
	// MaxArgs caps the number of arguments collected from one line.
	MaxArgs int `json:"max_args" validate:"gte=0"`

	SSHAddr   string `json:"ssh_addr"`
	SSHPort   int    `json:"ssh_port" validate:"gte=0,lte=65535"`
	SSHBanner string `json:"ssh_banner"`

	// AllowAnyPassword accepts every login, useful for lab machines.
	AllowAnyPassword bool `json:"allow_any_password"`

	// GlobalPasswords are accepted for any username.
	GlobalPasswords []string `json:"global_passwords"`

	// LoginsPerMinute throttles authentication attempts on the SSH
	// listener. Zero disables the throttle.
	LoginsPerMinute int `json:"logins_per_minute" validate:"gte=0"`

	Users []User `json:"users" validate:"unique=Username,dive"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})

	return validate.Struct(c)
}

type User struct {
	Username  string   `json:"username" validate:"required"`
	Home      string   `json:"home" validate:"required"`
	Passwords []string `json:"passwords" validate:"unique"`
}

func (c *Configuration) fs() afero.Fs {
	return c.configFs
}

// CreateSessionLog creates a transcript file with the given name.
func (c *Configuration) CreateSessionLog(name string) (afero.File, error) {
	toCreate := filepath.Join(LogsDirName, name)
	return c.fs().Create(toCreate)
}

// OpenSessionLog opens an existing transcript for reading.
func (c *Configuration) OpenSessionLog(name string) (afero.File, error) {
	return c.fs().Open(filepath.Join(LogsDirName, name))
}

// SessionLogs lists the recorded transcripts, newest name last.
func (c *Configuration) SessionLogs() ([]os.FileInfo, error) {
	infos, err := afero.ReadDir(c.fs(), LogsDirName)
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name() < infos[j].Name()
	})
	return infos, nil
}

// PrivateKeyPem returns the bytes of the SSH host key.
func (c *Configuration) PrivateKeyPem() ([]byte, error) {
	return afero.ReadFile(c.fs(), PrivateKeyName)
}

// OpenAppLog opens the application event log in an append only state.
func (c *Configuration) OpenAppLog() (afero.File, error) {
	return c.fs().OpenFile(AppLogName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

func (c *Configuration) ReadAppLog() (afero.File, error) {
	return c.fs().OpenFile(AppLogName, os.O_RDONLY, 0600)
}

// GetPasswords returns allowable passwords for the given username.
func (c *Configuration) GetPasswords(username string) []string {
	var out []string
	for _, v := range c.Users {
		if v.Username == username {
			out = append(out, v.Passwords...)
		}
	}

	out = append(out, c.GlobalPasswords...)
	return out
}

// GetUser returns the account for the username, if one is configured.
func (c *Configuration) GetUser(username string) (User, bool) {
	for _, v := range c.Users {
		if v.Username == username {
			return v, true
		}
	}
	return User{}, false
}

func defaultConfig() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}
