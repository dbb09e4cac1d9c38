package proposer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"riskgate/logs"
	"riskgate/risk"

	"gopkg.in/yaml.v2"
)

// Proposer supplies the trades to validate in one cycle.
type Proposer interface {
	Propose(ctx context.Context) ([]risk.ProposedTrade, error)
}

// StaticProposer returns the same list every cycle.
type StaticProposer struct {
	Trades []risk.ProposedTrade
}

func (s *StaticProposer) Propose(ctx context.Context) ([]risk.ProposedTrade, error) {
	out := make([]risk.ProposedTrade, len(s.Trades))
	copy(out, s.Trades)
	return out, nil
}

// proposalFile is the on-disk format of a proposal drop.
type proposalFile struct {
	Trades []struct {
		Ticker   string  `yaml:"ticker"`
		Action   string  `yaml:"action"`
		Shares   int64   `yaml:"shares"`
		Notional float64 `yaml:"notional"`
		Reason   string  `yaml:"reason"`
	} `yaml:"trades"`
}

// ParseProposals decodes a proposal document. Unknown actions are kept as-is
// so the engine can reject them with a reason instead of losing them here.
func ParseProposals(data []byte) ([]risk.ProposedTrade, error) {
	var f proposalFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse proposals: %w", err)
	}
	out := make([]risk.ProposedTrade, 0, len(f.Trades))
	for _, t := range f.Trades {
		side, err := risk.ParseSide(t.Action)
		if err != nil {
			side = risk.Side(strings.ToUpper(strings.TrimSpace(t.Action)))
		}
		out = append(out, risk.ProposedTrade{
			Ticker:    risk.NormalizeTicker(t.Ticker),
			Side:      side,
			Shares:    t.Shares,
			Notional:  t.Notional,
			Reasoning: t.Reason,
		})
	}
	return out, nil
}

// LoadProposals reads and parses one proposal file.
func LoadProposals(path string) ([]risk.ProposedTrade, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read proposals file %s: %w", path, err)
	}
	return ParseProposals(data)
}

// FileProposer consumes YAML drops from an inbox directory.
// Consumed files move to processed/, unparseable ones to failed/.
type FileProposer struct {
	inbox     string
	processed string
	failed    string
}

func NewFileProposer(inbox string) (*FileProposer, error) {
	fp := &FileProposer{
		inbox:     inbox,
		processed: filepath.Join(inbox, "processed"),
		failed:    filepath.Join(inbox, "failed"),
	}
	for _, dir := range []string{fp.inbox, fp.processed, fp.failed} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create proposal directory %s: %w", dir, err)
		}
	}
	return fp, nil
}

// Propose drains every pending file, in name order.
func (fp *FileProposer) Propose(ctx context.Context) ([]risk.ProposedTrade, error) {
	entries, err := os.ReadDir(fp.inbox)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposal inbox: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var out []risk.ProposedTrade
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		path := filepath.Join(fp.inbox, name)
		trades, err := LoadProposals(path)
		if err != nil {
			logs.Errorf("[Proposer] %s: %v, moving to %s", name, err, fp.failed)
			if mvErr := os.Rename(path, filepath.Join(fp.failed, name)); mvErr != nil {
				return out, fmt.Errorf("failed to move %s: %w", name, mvErr)
			}
			continue
		}
		if err := os.Rename(path, filepath.Join(fp.processed, name)); err != nil {
			return out, fmt.Errorf("failed to move %s: %w", name, err)
		}
		logs.Infof("[Proposer] %s: %d proposed trades", name, len(trades))
		out = append(out, trades...)
	}
	return out, nil
}
