package companion

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Companion is a configured learning agent a user can open sessions with.
type Companion struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Subject   string    `json:"subject" yaml:"subject"`
	Topic     string    `json:"topic" yaml:"topic"`
	Voice     string    `json:"voice,omitempty" yaml:"voice"`
	Style     string    `json:"style,omitempty" yaml:"style"`
	Duration  int       `json:"duration,omitempty" yaml:"duration"` // 分钟
	Author    string    `json:"author,omitempty" yaml:"author"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
}

// Seed provides the default companions served when no database is configured.
func Seed() []Companion {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return []Companion{
		{
			ID:        "neura-brainy-explorer",
			Name:      "Neura the Brainy Explorer",
			Subject:   "science",
			Topic:     "Neural network of the brain",
			Voice:     "female",
			Style:     "casual",
			Duration:  45,
			CreatedAt: created,
		},
		{
			ID:        "countsy-number-wizard",
			Name:      "Countsy the Number Wizard",
			Subject:   "maths",
			Topic:     "Derivatives & Integrals",
			Voice:     "male",
			Style:     "formal",
			Duration:  30,
			CreatedAt: created,
		},
		{
			ID:        "verba-vocabulary-builder",
			Name:      "Verba the Vocabulary Builder",
			Subject:   "language",
			Topic:     "English literature",
			Voice:     "female",
			Style:     "casual",
			Duration:  30,
			CreatedAt: created,
		},
	}
}

// LoadSeedFile 从 YAML 文件读取 companion 列表。
func LoadSeedFile(path string) ([]Companion, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}

	var doc struct {
		Companions []Companion `yaml:"companions"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing seed file %s: %w", path, err)
	}

	for i, item := range doc.Companions {
		if item.ID == "" || item.Name == "" {
			return nil, fmt.Errorf("seed entry %d: id and name are required", i)
		}
		if item.CreatedAt.IsZero() {
			doc.Companions[i].CreatedAt = time.Now().UTC()
		}
	}
	return doc.Companions, nil
}
