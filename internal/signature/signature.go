// Package signature derives a deterministic fingerprint over the stable
// subset of a job. The signature is the cache key for result deduplication:
// two jobs with the same stable subset hash identically regardless of
// correlation id, current depth, or map key ordering.
package signature

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/haasonsaas/agui/pkg/models"
)

// ShortLength is the prefix length used for human display.
const ShortLength = 8

// Compute returns the 64-character lowercase hex SHA-256 of the canonical
// serialization of the job's stable subset.
func Compute(job *models.RunJob) (string, error) {
	stable := stableSubset(job)

	// Round-trip through JSON so nested structs become generic maps keyed
	// by their wire names before canonical ordering is applied.
	raw, err := json.Marshal(stable)
	if err != nil {
		return "", fmt.Errorf("marshal stable subset: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("decode stable subset: %w", err)
	}

	var buf bytes.Buffer
	if err := canonicalize(&buf, generic); err != nil {
		return "", err
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

// Short returns the display prefix of a signature.
func Short(sig string) string {
	if len(sig) <= ShortLength {
		return sig
	}
	return sig[:ShortLength]
}

// stableSubset picks the fields whose change alters the request's intent.
// Unset optional fields are omitted, making "absent" and "explicitly unset"
// equivalent. CorrelationID and CurrentDepth are volatile and excluded.
func stableSubset(job *models.RunJob) map[string]any {
	stable := map[string]any{
		"userId":             job.UserID,
		"prompt":             job.Prompt,
		"maxDepth":           job.MaxDepth,
		"contextWindowLimit": job.ContextWindowLimit,
	}
	if job.PreviousContext != "" {
		stable["previousContext"] = job.PreviousContext
	}
	if job.ToolResults != nil {
		stable["toolResults"] = job.ToolResults
	}
	if job.Metadata != nil {
		stable["metadata"] = job.Metadata
	}
	return stable
}

// canonicalize emits a canonical JSON encoding: object keys in ascending
// lexicographic order at every depth, arrays in input order, nulls as the
// literal null, strings with strict JSON quoting, numbers in their shortest
// JSON form.
func canonicalize(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyJSON, err := json.Marshal(k)
			if err != nil {
				return fmt.Errorf("marshal key %q: %w", k, err)
			}
			buf.Write(keyJSON)
			buf.WriteByte(':')
			if err := canonicalize(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := canonicalize(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		// Scalars: encoding/json already emits shortest-form numbers and
		// strictly quoted strings.
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("marshal scalar: %w", err)
		}
		buf.Write(raw)
	}
	return nil
}
