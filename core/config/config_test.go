package config

import (
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v2"
)

func TestBuiltinConfig(t *testing.T) {
	rawConfig := make(map[string]interface{})
	assert.Nil(t, yaml.Unmarshal(defaultConfigData, &rawConfig))

	knownFields := make(map[string]bool)
	rt := reflect.TypeOf(Configuration{})
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		assert.NotEmpty(t, jsonTag)
		jsonField := strings.Split(jsonTag, ",")[0]
		knownFields[jsonField] = true

		if _, ok := rawConfig[jsonField]; !ok {
			assert.False(t, true, "default config missing field: %q", jsonField)
		}
	}

	for k := range rawConfig {
		_, ok := knownFields[k]
		assert.True(t, ok, "default config contains invalid field: %q", k)
	}
}

func TestDefaultConfig(t *testing.T) {
	// Will panic() on load failure because it should never happen at runtime.
	assert.NotNil(t, defaultConfig())
}

func TestDefaultConfigValidates(t *testing.T) {
	assert.Nil(t, defaultConfig().Validate())
}

func TestValidateRejections(t *testing.T) {
	cases := map[string]func(c *Configuration){
		"negative max args": func(c *Configuration) {
			c.MaxArgs = -1
		},
		"port out of range": func(c *Configuration) {
			c.SSHPort = 65536
		},
		"duplicate usernames": func(c *Configuration) {
			c.Users = append(c.Users, c.Users...)
		},
		"user with no home": func(c *Configuration) {
			c.Users = append(c.Users, User{Username: "u2"})
		},
	}

	for tn, mutate := range cases {
		t.Run(tn, func(t *testing.T) {
			cfg := defaultConfig()
			mutate(cfg)
			assert.NotNil(t, cfg.Validate())
		})
	}
}

func TestGetPasswords(t *testing.T) {
	cfg := &Configuration{
		GlobalPasswords: []string{"letmein"},
		Users: []User{
			{Username: "alice", Home: "/home/alice", Passwords: []string{"hunter2"}},
		},
	}

	assert.Equal(t, []string{"hunter2", "letmein"}, cfg.GetPasswords("alice"))
	assert.Equal(t, []string{"letmein"}, cfg.GetPasswords("nobody"))
}

func TestGetUser(t *testing.T) {
	cfg := &Configuration{
		Users: []User{{Username: "alice", Home: "/home/alice"}},
	}

	user, ok := cfg.GetUser("alice")
	assert.True(t, ok)
	assert.Equal(t, "/home/alice", user.Home)

	_, ok = cfg.GetUser("nobody")
	assert.False(t, ok)
}
