package sync

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/vonshlovens/obsync-notion/internal/config"
	"github.com/vonshlovens/obsync-notion/internal/vault"
)

// Resolution is the decided action for one linked record/document pair.
type Resolution int

const (
	// ResolutionNone means neither side changed; no writes.
	ResolutionNone Resolution = iota

	// ResolutionApplyRemote means the remote snapshot wins and is
	// written to the local document.
	ResolutionApplyRemote

	// ResolutionPushLocal means the local document wins and is pushed
	// to the remote record.
	ResolutionPushLocal

	// ResolutionConflict means the pair diverged under the manual
	// policy; nothing is written, the caller reports it.
	ResolutionConflict
)

func (r Resolution) String() string {
	switch r {
	case ResolutionNone:
		return "no-change"
	case ResolutionApplyRemote:
		return "notion-wins"
	case ResolutionPushLocal:
		return "obsidian-wins"
	case ResolutionConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// LocalDocument is a parsed markdown document from the vault.
type LocalDocument struct {
	Handle      vault.Handle
	Frontmatter map[string]any
	Body        string
	RemoteID    string
}

// changeSet records which parts of a linked pair diverge.
type changeSet struct {
	properties bool
	content    bool
}

func (c changeSet) any() bool {
	return c.properties || c.content
}

// detectChanges compares the remote-converted front-matter and body
// against the local document. Only mapped fields participate in the
// property comparison; the mapping table is the sync contract.
func detectChanges(remoteFM map[string]any, remoteBody string, doc *LocalDocument, mappings []config.FieldMapping) changeSet {
	var cs changeSet

	for _, m := range mappings {
		remoteVal := normalizeValue(remoteFM[m.ObsidianProperty])
		localVal := normalizeValue(doc.Frontmatter[m.ObsidianProperty])
		if remoteVal != localVal {
			cs.properties = true
			break
		}
	}

	if normalizeBody(remoteBody) != normalizeBody(doc.Body) {
		cs.content = true
	}

	return cs
}

// resolve picks the winner for a diverged pair under the given policy.
// When timestamps tie under newer-wins, the remote side wins.
func resolve(policy string, cs changeSet, remoteEditedMillis, localModifiedMillis int64) Resolution {
	if !cs.any() {
		return ResolutionNone
	}

	switch policy {
	case config.PolicyNotionWins:
		return ResolutionApplyRemote
	case config.PolicyObsidianWins:
		return ResolutionPushLocal
	case config.PolicyNewerWins:
		if localModifiedMillis > remoteEditedMillis {
			return ResolutionPushLocal
		}
		return ResolutionApplyRemote
	case config.PolicyManual:
		return ResolutionConflict
	default:
		return ResolutionConflict
	}
}

// normalizeValue renders a front-matter value into a canonical string:
// lists sorted then joined, scalars stringified and trimmed, nil empty.
func normalizeValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []string:
		sorted := append([]string(nil), val...)
		sort.Strings(sorted)
		return strings.Join(sorted, ",")
	case []any:
		sorted := make([]string, 0, len(val))
		for _, item := range val {
			sorted = append(sorted, normalizeValue(item))
		}
		sort.Strings(sorted)
		return strings.Join(sorted, ",")
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

// normalizeBody canonicalizes line endings and outer whitespace.
func normalizeBody(body string) string {
	return strings.TrimSpace(strings.ReplaceAll(body, "\r\n", "\n"))
}
