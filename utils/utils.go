package utils

import (
	"bufio"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"strings"
)

// ParseFileByNewline returns the non-empty, non-comment lines of fileName.
func ParseFileByNewline(fileName string) ([]string, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, fmt.Errorf("error in reading file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Split(bufio.ScanLines)

	var lines []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error in parsing file: %w", err)
	}
	return lines, nil
}

// WriteIntoFile writes data to fileName, or to stdout when fileName is "-".
func WriteIntoFile(fileName string, data []byte) error {
	var err error
	switch fileName {
	case "-":
		_, err = os.Stdout.Write(data)
	default:
		err = os.WriteFile(fileName, data, 0644)
	}
	return err
}

// DeduplicateStrings removes repeated entries while keeping first-seen order.
func DeduplicateStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

const (
	charSet       = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	charSetLength = len(charSet)
)

func GeneratePassword(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("password length must be greater than 0")
	}

	password := make([]byte, length)
	randomBytes := make([]byte, length)

	if _, err := io.ReadFull(rand.Reader, randomBytes); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	for i := 0; i < length; i++ {
		password[i] = charSet[int(randomBytes[i])%charSetLength]
	}

	return string(password), nil
}
