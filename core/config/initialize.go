package config

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"log"
	"os"

	"github.com/spf13/afero"
)

const hostKeyBits = 2048

// Initialize populates the directory with everything the interpreter
// needs to run: a default configuration, an SSH host key, and the
// transcript directory. Existing files are kept as-is so it's safe to
// re-run.
func Initialize(path string, logger *log.Logger) (*Configuration, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, err
	}
	fs := afero.NewBasePathFs(afero.NewOsFs(), path)

	if err := initFile(fs, ConfigurationName, logger, writeDefaultConfig); err != nil {
		return nil, err
	}
	if err := initFile(fs, PrivateKeyName, logger, writeHostKey); err != nil {
		return nil, err
	}

	if err := fs.MkdirAll(LogsDirName, 0700); err != nil {
		return nil, err
	}

	return loadFs(fs)
}

// initFile creates the named file using write unless it already exists.
func initFile(fs afero.Fs, name string, logger *log.Logger, write func(fd afero.File) error) error {
	switch _, err := fs.Stat(name); {
	case err == nil:
		logger.Printf("%s already exists, keeping it", name)
		return nil
	case !os.IsNotExist(err):
		return err
	}

	logger.Printf("creating %s", name)
	fd, err := fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	defer fd.Close()

	return write(fd)
}

func writeDefaultConfig(fd afero.File) error {
	_, err := fd.Write(defaultConfigData)
	return err
}

// writeHostKey generates an RSA host key in PEM form for the SSH
// listener.
func writeHostKey(fd afero.File) error {
	key, err := rsa.GenerateKey(rand.Reader, hostKeyBits)
	if err != nil {
		return err
	}

	return pem.Encode(fd, &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
}
