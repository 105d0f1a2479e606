package handlers

import (
	"net/http"
)

// GetDrift — GET /api/v1/admin/drift (super_admin).
// Возвращает расхождения между основными и производными данными.
func (h *APIHandler) GetDrift(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciler.Drift(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDrift(report))
}

// Reconcile — POST /api/v1/admin/reconcile (super_admin).
// Запускает внеочередную сверку.
func (h *APIHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	result, err := h.reconciler.ReconcileNow(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReconcile(result))
}
