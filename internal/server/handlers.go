package server

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/KaramelBytes/tabletalk/internal/dataset"
	"github.com/KaramelBytes/tabletalk/internal/library"
	"github.com/KaramelBytes/tabletalk/internal/logging"
	"github.com/KaramelBytes/tabletalk/internal/nlq"
	"github.com/KaramelBytes/tabletalk/internal/sqlstore"
)

type loadResponse struct {
	Message  string   `json:"message"`
	Filename string   `json:"filename"`
	Table    string   `json:"table_name"`
	Rows     int      `json:"rows"`
	Columns  []string `json:"columns"`
}

func loaded(msg string, ds *dataset.Dataset) loadResponse {
	return loadResponse{Message: msg, Filename: ds.Source, Table: ds.Table, Rows: ds.Rows, Columns: ds.ColumnNames()}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) || errors.Is(err, multipart.ErrMessageTooLarge) {
			s.fail(w, r, &http.MaxBytesError{Limit: s.opts.MaxUploadBytes})
			return
		}
		s.fail(w, r, badRequest("No file part in request"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.fail(w, r, badRequest("No file part in request"))
		return
	}
	defer file.Close()
	if header.Filename == "" {
		s.fail(w, r, badRequest("No file selected"))
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	entry, _, err := s.lib.Save(header.Filename, data)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ds, err := s.store.Load(r.Context(), entry.Filename, data)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.record(ds)
	s.writeJSON(w, r, http.StatusOK, loaded("File uploaded successfully", ds))
}

type filesResponse struct {
	Files       []library.Entry `json:"files"`
	CurrentFile *string         `json:"current_file"`
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.lib.List()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := filesResponse{Files: files}
	if ds := s.store.Current(); ds != nil {
		resp.CurrentFile = &ds.Table
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleSelectFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var body struct {
		Filename string `json:"filename"`
	}
	if err := decodeJSON(r, &body); err != nil || body.Filename == "" {
		s.fail(w, r, badRequest("Filename is required"))
		return
	}
	path, err := s.lib.Path(body.Filename)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ds, err := s.store.LoadFile(r.Context(), path)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.record(ds)
	s.writeJSON(w, r, http.StatusOK, loaded("File selected successfully", ds))
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	removed, err := s.lib.Delete(chi.URLParam(r, "filename"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	cleared, err := s.store.ClearIfTable(r.Context(), dataset.TableIdentifier(removed))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	logging.FromContext(r.Context(), s.log).Info("file deleted", zap.String("file", removed), zap.Bool("cleared", cleared))
	s.writeJSON(w, r, http.StatusOK, map[string]string{"message": "File deleted successfully"})
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request) (*nlq.Answer, error) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var body struct {
		Question string `json:"question"`
	}
	if err := decodeJSON(r, &body); err != nil {
		return nil, err
	}
	return s.asker.Ask(r.Context(), body.Question)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ans, err := s.ask(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, ans)
}

// legacyAnswer is the response shape of the original chat route.
type legacyAnswer struct {
	SQL               string         `json:"sql,omitempty"`
	Result            []sqlstore.Row `json:"result"`
	ProcessedQuestion string         `json:"processed_question,omitempty"`
	CurrentFile       string         `json:"current_file,omitempty"`
	Message           string         `json:"message,omitempty"`
}

func (s *Server) handleLegacyChat(w http.ResponseWriter, r *http.Request) {
	ans, err := s.ask(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ans.OnTopic {
		s.writeJSON(w, r, http.StatusOK, legacyAnswer{Result: ans.Result, Message: ans.Message})
		return
	}
	s.writeJSON(w, r, http.StatusOK, legacyAnswer{
		SQL:               ans.Query,
		Result:            ans.Result,
		ProcessedQuestion: ans.RewrittenQuestion,
		CurrentFile:       ans.TableIdentifier,
	})
}

type healthResponse struct {
	Status          string              `json:"status"`
	Table           *string             `json:"table"`
	Columns         []string            `json:"columns"`
	CategorySamples map[string][]string `json:"category_samples"`
	Rows            int                 `json:"rows"`
	DataLoaded      bool                `json:"data_loaded"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Columns: []string{}, CategorySamples: map[string][]string{}}
	if ds := s.store.Current(); ds != nil {
		resp.Table = &ds.Table
		resp.Columns = ds.ColumnNames()
		resp.CategorySamples = categories(ds)
		resp.Rows = ds.Rows
		resp.DataLoaded = true
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	ds := s.store.Current()
	if ds == nil || len(ds.Profiles) == 0 {
		s.fail(w, r, badRequest("No data loaded"))
		return
	}
	s.writeJSON(w, r, http.StatusOK, categories(ds))
}

func categories(ds *dataset.Dataset) map[string][]string {
	out := make(map[string][]string, len(ds.Profiles))
	for _, p := range ds.Profiles {
		out[p.Column] = p.Values
	}
	return out
}
