package repository

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonipcv/kr-webhooks/internal/models"
)

func TestForwardPredicateCoversEveryTransition(t *testing.T) {
	predicate := forwardPredicate("$3")

	for from, allowed := range models.AllowedTransitions {
		branch := extractBranch(t, predicate, from)
		for _, to := range allowed {
			assert.Contains(t, branch, "'"+to+"'", "%s -> %s missing from predicate", from, to)
		}
	}
}

func TestForwardPredicateHasNoBackwardBranch(t *testing.T) {
	predicate := forwardPredicate("$3")

	// Terminal statuses never appear as a branch head.
	for _, terminal := range []string{models.StatusFailed, models.StatusRefused, models.StatusChargedback} {
		assert.NotContains(t, predicate, fmt.Sprintf("(status = '%s'", terminal))
	}

	// No branch re-enters its own status or moves back to pending.
	for from := range models.AllowedTransitions {
		branch := extractBranch(t, predicate, from)
		list := branch[strings.Index(branch, "IN ("):]
		assert.NotContains(t, list, "'"+from+"'", "branch %s re-enters itself", from)
		assert.NotContains(t, list, "'"+models.StatusPending+"'", "branch %s allows pending", from)
	}
}

func TestForwardPredicateBindsTheGivenParam(t *testing.T) {
	assert.Contains(t, forwardPredicate("$4"), "$4 IN (")
	assert.NotContains(t, forwardPredicate("$4"), "$3")
}

// extractBranch pulls the single "(status = 'from' AND ...)" branch out of
// the rendered predicate.
func extractBranch(t *testing.T, predicate, from string) string {
	t.Helper()
	head := fmt.Sprintf("(status = '%s' AND", from)
	start := strings.Index(predicate, head)
	require.GreaterOrEqual(t, start, 0, "no branch for %s", from)
	end := strings.Index(predicate[start:], ")")
	require.Greater(t, end, 0)
	return predicate[start : start+end+1]
}
