package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Standard document file names within a config directory.
const (
	ObjectivesFile = "objectives.json"
	CouplingFile   = "coupling.json"
	ActionsFile    = "actions.json"
)

// #region documents

// Documents bundles the three configuration documents plus the content hash
// computed over their raw bytes. The hash is the reproducibility ledger:
// identical for two decisions under unchanged configuration, different
// whenever any byte of any document changes.
type Documents struct {
	Objectives ObjectivesDoc
	Coupling   CouplingDoc
	Actions    ActionsDoc
	Hash       string
}

// #endregion documents

// #region load

// Load reads and parses the three documents from dir. JSON syntax errors are
// returned here; semantic violations are reported by Validate so the caller
// can surface the full error list on CONFIG_INVALID.
func Load(dir string) (*Documents, error) {
	objRaw, err := os.ReadFile(filepath.Join(dir, ObjectivesFile))
	if err != nil {
		return nil, fmt.Errorf("read objectives: %w", err)
	}
	cplRaw, err := os.ReadFile(filepath.Join(dir, CouplingFile))
	if err != nil {
		return nil, fmt.Errorf("read coupling: %w", err)
	}
	actRaw, err := os.ReadFile(filepath.Join(dir, ActionsFile))
	if err != nil {
		return nil, fmt.Errorf("read actions: %w", err)
	}
	return Parse(objRaw, cplRaw, actRaw)
}

// Parse builds Documents from raw document bytes. Exposed separately from
// Load so replay fixtures can embed document bytes directly.
func Parse(objRaw, cplRaw, actRaw []byte) (*Documents, error) {
	var d Documents
	if err := json.Unmarshal(objRaw, &d.Objectives); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ObjectivesFile, err)
	}
	if err := json.Unmarshal(cplRaw, &d.Coupling); err != nil {
		return nil, fmt.Errorf("parse %s: %w", CouplingFile, err)
	}
	if err := json.Unmarshal(actRaw, &d.Actions); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ActionsFile, err)
	}
	d.Hash = HashDocuments(objRaw, cplRaw, actRaw)
	return &d, nil
}

// #endregion load

// #region hash

// HashDocuments computes "sha256:<hex>" over the concatenation of the three
// raw documents in fixed order (objectives, coupling, actions).
func HashDocuments(objRaw, cplRaw, actRaw []byte) string {
	h := sha256.New()
	h.Write(objRaw)
	h.Write(cplRaw)
	h.Write(actRaw)
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

// #endregion hash
