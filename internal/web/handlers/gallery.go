package handlers

import (
	"bytes"
	_ "embed"
	"errors"
	"html/template"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-registry/internal/imagestore"
	"github.com/sirupsen/logrus"
)

//go:embed templates/gallery.html
var galleryHTML string

var galleryTemplate = template.Must(template.New("gallery").Parse(galleryHTML))

// PerPageCookie remembers the chosen page size between visits.
const PerPageCookie = "ipp"

// Images is the directory shown by the gallery.
type Images interface {
	List() ([]string, error)
	Path(name string) (string, error)
}

// GalleryHandler serves the paginated image gallery.
type GalleryHandler struct {
	images     Images
	defaultIPP int
	minIPP     int
	log        *logrus.Entry
}

// NewGalleryHandler creates a gallery with the given default and minimum page size.
func NewGalleryHandler(images Images, defaultIPP, minIPP int, log *logrus.Entry) *GalleryHandler {
	minIPP = max(1, minIPP)
	return &GalleryHandler{
		images:     images,
		defaultIPP: max(minIPP, defaultIPP),
		minIPP:     minIPP,
		log:        log,
	}
}

// Page is one page of the gallery.
type Page struct {
	Images     []string
	Current    int
	Total      int
	PerPage    int
	MinPerPage int
	Pages      []int
}

// Paginate slices names into pages of perPage. There is always at least one
// page; current is clamped to the valid range.
func Paginate(names []string, current, perPage int) Page {
	total := max(1, (len(names)+perPage-1)/perPage)
	current = min(max(1, current), total)

	start := min((current-1)*perPage, len(names))
	end := min(start+perPage, len(names))

	pages := make([]int, total)
	for i := range pages {
		pages[i] = i + 1
	}
	return Page{
		Images:  names[start:end],
		Current: current,
		Total:   total,
		PerPage: perPage,
		Pages:   pages,
	}
}

// Index renders the gallery. The page size comes from ?ipp, then the cookie,
// then the default; a size given in the query is stored in the cookie.
func (h *GalleryHandler) Index(w http.ResponseWriter, r *http.Request) {
	perPage := h.defaultIPP
	if c, err := r.Cookie(PerPageCookie); err == nil {
		if n, err := strconv.Atoi(c.Value); err == nil && n >= h.minIPP {
			perPage = n
		}
	}
	if v := r.URL.Query().Get("ipp"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < h.minIPP {
			http.Error(w, "invalid ipp", http.StatusBadRequest)
			return
		}
		perPage = n
		http.SetCookie(w, &http.Cookie{
			Name:     PerPageCookie,
			Value:    strconv.Itoa(n),
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	current := 1
	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid page", http.StatusBadRequest)
			return
		}
		current = n
	}

	names, err := h.images.List()
	if err != nil {
		h.log.WithError(err).Error("listing images")
		http.Error(w, "failed to list images", http.StatusInternalServerError)
		return
	}

	page := Paginate(names, current, perPage)
	page.MinPerPage = h.minIPP

	var buf bytes.Buffer
	if err := galleryTemplate.Execute(&buf, page); err != nil {
		h.log.WithError(err).Error("rendering gallery")
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// Image serves one file from the image directory.
func (h *GalleryHandler) Image(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !imagestore.IsImage(name) {
		http.NotFound(w, r)
		return
	}
	path, err := h.images.Path(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			h.log.WithError(err).WithField("image", sanitizeForLog(name)).Error("stat image")
		}
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, path)
}
