package utils

import (
	"bufio"
	"os"
	"strings"
)

// IgnoreList holds file and directory names the scanner skips
type IgnoreList struct {
	names map[string]struct{}
}

// NewIgnoreList builds an ignore list from names
func NewIgnoreList(names ...string) *IgnoreList {
	l := &IgnoreList{names: make(map[string]struct{}, len(names))}
	for _, name := range names {
		l.add(name)
	}
	return l
}

// LoadIgnoreList loads ignored names from a file, one per line
func LoadIgnoreList(path string) (*IgnoreList, error) {
	// If file doesn't exist, return empty list
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return NewIgnoreList(), nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	list := NewIgnoreList()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name != "" && !strings.HasPrefix(name, "#") {
			list.add(name)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

func (l *IgnoreList) add(name string) {
	l.names[strings.ToLower(name)] = struct{}{}
}

// Matches reports whether an entry name is ignored. Hidden entries always are.
func (l *IgnoreList) Matches(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	if l == nil {
		return false
	}
	_, ok := l.names[strings.ToLower(name)]
	return ok
}

// Len returns the number of configured names
func (l *IgnoreList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.names)
}
