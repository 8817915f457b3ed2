package credstore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// ErrSealed возвращается, если файл не удалось расшифровать заданным секретом.
var ErrSealed = errors.New("credentials file cannot be opened with the configured secret")

// File хранит токен в JSON-файле вида {"<key>": "<token>"}.
// Если задан секрет, содержимое файла запечатывается secretbox.
type File struct {
	path string
	key  string

	sealed bool
	secret [32]byte

	mu sync.Mutex
}

// NewFile создаёт файловое хранилище. Пустой secret отключает шифрование.
func NewFile(path, key, secret string) *File {
	f := &File{path: path, key: key}
	if secret != "" {
		f.sealed = true
		f.secret = sha256.Sum256([]byte(secret))
	}
	return f
}

func (f *File) Token(context.Context) (string, error) {
	const op = "credstore.File.Token"
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return values[f.key], nil
}

func (f *File) Save(_ context.Context, token string) error {
	const op = "credstore.File.Save"
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil && !errors.Is(err, ErrSealed) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if values == nil {
		values = map[string]string{}
	}
	values[f.key] = token
	if err := f.write(values); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (f *File) Clear(context.Context) error {
	const op = "credstore.File.Clear"
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil || len(values) <= 1 {
		// нечитаемый файл или только наш ключ: удаляем целиком
		if rmErr := os.Remove(f.path); rmErr != nil && !os.IsNotExist(rmErr) {
			return fmt.Errorf("%s: %w", op, rmErr)
		}
		return nil
	}
	delete(values, f.key)
	if err := f.write(values); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (f *File) read() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	if f.sealed {
		if data, err = f.open(data); err != nil {
			return nil, err
		}
	}
	values := map[string]string{}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	return values, nil
}

func (f *File) write(values map[string]string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return err
	}
	if f.sealed {
		if data, err = f.seal(data); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".credentials-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

func (f *File) seal(plain []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plain, &nonce, &f.secret), nil
}

func (f *File) open(box []byte) ([]byte, error) {
	if len(box) < nonceSize {
		return nil, ErrSealed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	plain, ok := secretbox.Open(nil, box[nonceSize:], &nonce, &f.secret)
	if !ok {
		return nil, ErrSealed
	}
	return plain, nil
}
