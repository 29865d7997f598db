package http

import (
	"errors"
	"net/http"
	"net/url"

	"caixa/internal/core"
	"caixa/internal/log"
	"caixa/internal/services"
)

type pageHeader struct {
	Title  string
	Active string
	Loaded bool
}

type summaryPage struct {
	pageHeader
	Summary       core.Summary
	ExpensesCount int
	ProfitsCount  int
}

type chartsPage struct {
	pageHeader
	NoData  bool
	Message string
	Charts  core.ChartData
}

type recordsPage struct {
	pageHeader
	Kind   core.Kind
	Kinds  []core.Kind
	Tipos  []string
	Rows   []core.Transaction
	Form   recordForm
	Error  string
	Notice string
}

type confirmDeletePage struct {
	pageHeader
	Kind  core.Kind
	Entry core.Transaction
}

func (s *Server) header(title, active string) pageHeader {
	return pageHeader{Title: title, Active: active, Loaded: s.svc.Loaded()}
}

// handleSummary renders saldo atual for the current collections.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	initial, err := s.initialBalanceFrom(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	snap := s.svc.Store().Snapshot()
	s.render(w, r, http.StatusOK, "summary.html", summaryPage{
		pageHeader:    s.header("Saldo", "summary"),
		Summary:       core.Summarize(initial, snap.Expenses, snap.Profits),
		ExpensesCount: len(snap.Expenses),
		ProfitsCount:  len(snap.Profits),
	})
}

// handleCharts renders the four charts, or a notice when a collection is empty.
func (s *Server) handleCharts(w http.ResponseWriter, r *http.Request) {
	page := chartsPage{pageHeader: s.header("Gráficos", "charts")}

	charts, err := s.charts.Charts(s.svc.Store().Snapshot())
	switch {
	case errors.Is(err, core.ErrNoData):
		page.NoData = true
		page.Message = core.NoDataMessage
	case err != nil:
		InternalServerError(err.Error()).Write(w)
		return
	default:
		page.Charts = charts
	}
	s.render(w, r, http.StatusOK, "charts.html", page)
}

// handleRecords lists one collection next to the add/edit form.
// ?edit=<id> loads that entry into the form.
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	kind, err := kindFromQuery(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	form := recordForm{Kind: kind}
	if id := core.ID(r.URL.Query().Get("edit")); !id.IsZero() {
		entry, ok := s.find(kind, id)
		if !ok {
			NotFoundError("registro não encontrado").Write(w)
			return
		}
		form = recordForm{Kind: kind, ID: entry.ID, Tipo: entry.Tipo, Valor: entry.Valor.String(), Data: entry.Data}
	}
	s.renderRecords(w, r, http.StatusOK, form, "", "")
}

// handleSaveRecord creates an entry, or updates one when the form carries an id.
func (s *Server) handleSaveRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx)

	form, err := parseRecordForm(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	draft, err := form.Draft()
	if err != nil {
		logger.InfoContext(ctx, "Record rejected",
			log.FieldComponent, log.ComponentHTTP,
			log.FieldOperation, log.OpValidate,
			log.FieldKind, form.Kind.String(),
			log.FieldError, err.Error())
		s.renderRecords(w, r, http.StatusUnprocessableEntity, form, validationMessage(err), "")
		return
	}

	var res services.Result
	if form.Editing() {
		res = s.svc.Update(ctx, form.Kind, form.ID, draft)
	} else {
		res = s.svc.Create(ctx, form.Kind, draft)
	}
	s.afterMutation(w, r, form, res)
}

// handleConfirmDelete asks before removing an entry.
func (s *Server) handleConfirmDelete(w http.ResponseWriter, r *http.Request) {
	kind, err := kindFromQuery(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	entry, ok := s.find(kind, core.ID(r.URL.Query().Get("id")))
	if !ok {
		NotFoundError("registro não encontrado").Write(w)
		return
	}
	s.render(w, r, http.StatusOK, "confirm_delete.html", confirmDeletePage{
		pageHeader: s.header("Excluir "+kind.Label(), "records"),
		Kind:       kind,
		Entry:      entry,
	})
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	form, err := parseRecordForm(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if form.ID.IsZero() {
		BadRequestError(services.ErrMissingID.Error()).Write(w)
		return
	}
	res := s.svc.Delete(r.Context(), form.Kind, form.ID)
	s.afterMutation(w, r, recordForm{Kind: form.Kind}, res)
}

// afterMutation redirects on success. A failed mutation re-renders the form
// with its input; a failed reload after a successful mutation shows a banner.
func (s *Server) afterMutation(w http.ResponseWriter, r *http.Request, form recordForm, res services.Result) {
	if res.Err != nil {
		s.renderRecords(w, r, statusFor(res.Err), form, res.Err.Error(), "")
		return
	}
	if err := res.Failure(); err != nil {
		s.renderRecords(w, r, http.StatusOK, recordForm{Kind: form.Kind}, "", "Salvo, mas a lista não pôde ser recarregada: "+err.Error())
		return
	}
	SeeOther("/records?kind=" + url.QueryEscape(form.Kind.String())).Write(w)
}

func (s *Server) renderRecords(w http.ResponseWriter, r *http.Request, status int, form recordForm, errMsg, notice string) {
	s.render(w, r, status, "records.html", recordsPage{
		pageHeader: s.header("Registros", "records"),
		Kind:       form.Kind,
		Kinds:      core.Kinds(),
		Tipos:      core.Tipos(),
		Rows:       s.svc.Store().Get(form.Kind),
		Form:       form,
		Error:      errMsg,
		Notice:     notice,
	})
}

func (s *Server) find(kind core.Kind, id core.ID) (core.Transaction, bool) {
	if id.IsZero() {
		return core.Transaction{}, false
	}
	for _, t := range s.svc.Store().Get(kind) {
		if t.ID == id {
			return t, true
		}
	}
	return core.Transaction{}, false
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, core.ErrEmptyTipo):
		return "Escolha um tipo."
	case errors.Is(err, core.ErrInvalidValor):
		return "Valor inválido: use um número com ponto decimal."
	case errors.Is(err, core.ErrInvalidData):
		return "Data inválida: use dd/mm/aaaa."
	default:
		return err.Error()
	}
}
