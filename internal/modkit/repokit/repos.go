// Package repokit provides common types and helpers for repository implementations
package repokit

import (
	"secondbrain/internal/platform/store"
)

type (
	// Docs is the document container seam repos bind against
	Docs = store.Docs

	// Container is one document collection
	Container = store.Container
)
