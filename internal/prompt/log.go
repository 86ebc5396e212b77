package prompt

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bowerhall/chordial/internal/llm"
	"github.com/bowerhall/chordial/internal/logger"
)

// Log appends every assembled prompt to a per-user file for offline tuning.
// A nil *Log discards everything.
type Log struct {
	dir string
	mu  sync.Mutex
}

// NewLog returns a log writing under dir, or nil when dir is empty
func NewLog(dir string) (*Log, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create prompt log dir: %w", err)
	}
	return &Log{dir: dir}, nil
}

func (l *Log) Dir() string {
	if l == nil {
		return ""
	}
	return l.dir
}

func safeName(userName string) string {
	if userName == "" {
		return "unknown_user"
	}
	return strings.NewReplacer(" ", "_", "/", "_").Replace(userName)
}

func (l *Log) path(userName string) string {
	return filepath.Join(l.dir, "prompts_"+safeName(userName)+".log")
}

// EstimateTokens is the rough four-characters-per-token estimate
func EstimateTokens(messages []llm.Message) int {
	chars := 0
	for _, m := range messages {
		chars += utf8.RuneCountInString(m.Content)
	}
	return chars / 4
}

// Write appends one prompt entry. Failures are logged and swallowed.
func (l *Log) Write(userName, promptType string, messages []llm.Message, at time.Time) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.write(userName, promptType, messages, at); err != nil {
		logger.Error("failed to log prompt", "user", userName, "error", err)
	}
}

func (l *Log) write(userName, promptType string, messages []llm.Message, at time.Time) error {
	f, err := os.OpenFile(l.path(userName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	user := userName
	if user == "" {
		user = "unknown"
	}

	var b strings.Builder
	b.WriteString("\n" + strings.Repeat("=", 80) + "\n")
	fmt.Fprintf(&b, "timestamp: %s\n", at.Format(time.RFC3339))
	fmt.Fprintf(&b, "prompt_type: %s\n", promptType)
	fmt.Fprintf(&b, "user: %s\n", user)
	fmt.Fprintf(&b, "message_count: %d\n", len(messages))
	fmt.Fprintf(&b, "estimated_tokens: ~%d\n", EstimateTokens(messages))
	b.WriteString(strings.Repeat("-", 40) + "\n\n")

	for i, m := range messages {
		fmt.Fprintf(&b, "[%d] role: %s\n", i, m.Role)
		for _, line := range strings.Split(m.Content, "\n") {
			b.WriteString("    " + line + "\n")
		}
		b.WriteString("\n")
	}
	b.WriteString(strings.Repeat("=", 80) + "\n\n")

	_, err = f.WriteString(b.String())
	return err
}

// Files lists every prompt log file
func (l *Log) Files() ([]string, error) {
	if l == nil {
		return nil, nil
	}
	return filepath.Glob(filepath.Join(l.dir, "prompts_*.log"))
}

// Stats summarises logged prompts
type Stats struct {
	Total           int
	Conversation    int
	Scheduled       int
	Users           []string
	EstimatedTokens int
	AverageTokens   float64
}

// Stats parses the log for one user, or for every user when userName is empty
func (l *Log) Stats(userName string) (*Stats, error) {
	if l == nil {
		return nil, fmt.Errorf("prompt logging is disabled")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var files []string
	if userName != "" {
		files = []string{l.path(userName)}
	} else {
		var err error
		if files, err = l.Files(); err != nil {
			return nil, err
		}
	}

	stats := &Stats{}
	users := make(map[string]bool)
	for _, path := range files {
		if err := scanLog(path, stats, users); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
	}

	for u := range users {
		stats.Users = append(stats.Users, u)
	}
	slices.Sort(stats.Users)

	stats.Total = stats.Conversation + stats.Scheduled
	if stats.Total > 0 {
		stats.AverageTokens = float64(stats.EstimatedTokens) / float64(stats.Total)
	}
	return stats, nil
}

// scanLog reads header lines only; message content is always indented
func scanLog(path string, stats *Stats, users map[string]bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "prompt_type: "+TypeConversation:
			stats.Conversation++
		case line == "prompt_type: "+TypeScheduled:
			stats.Scheduled++
		case strings.HasPrefix(line, "user: "):
			if u := strings.TrimPrefix(line, "user: "); u != "unknown" {
				users[u] = true
			}
		case strings.HasPrefix(line, "estimated_tokens: ~"):
			if n, err := strconv.Atoi(strings.TrimPrefix(line, "estimated_tokens: ~")); err == nil {
				stats.EstimatedTokens += n
			}
		}
	}
	return scanner.Err()
}
