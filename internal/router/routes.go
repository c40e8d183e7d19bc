package router

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/gallerywidget/internal/gallery"
)

// Routes is the table of named routes. It resolves names into paths for the
// gallery widget and the image handlers.
type Routes struct {
	mu    sync.RWMutex
	paths map[string]string
}

func NewRoutes() *Routes {
	return &Routes{paths: make(map[string]string)}
}

// Add names path, a gin route pattern such as "/gallery/images/:pk/crop".
func (r *Routes) Add(name, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths[name] = path
}

// Path returns the pattern registered under name.
func (r *Routes) Path(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	path, ok := r.paths[name]
	return path, ok
}

// AddGallery names the upload, fetch and crop routes of the image model key
// under prefix.
func (r *Routes) AddGallery(key, prefix string) {
	prefix = "/" + strings.Trim(prefix, "/")
	r.Add(gallery.UploadURLName(key), prefix+"/upload")
	r.Add(gallery.FetchURLName(key), prefix+"/fetch")
	r.Add(gallery.CropURLName(key), prefix+"/:pk/crop")
}

// Reverse implements gallery.URLReverser. Every ":param" segment of the route
// must be supplied in params.
func (r *Routes) Reverse(name string, params map[string]string) (string, error) {
	pattern, ok := r.Path(name)
	if !ok {
		return "", fmt.Errorf("no route named %q", name)
	}

	segments := strings.Split(pattern, "/")
	for i, segment := range segments {
		if !strings.HasPrefix(segment, ":") && !strings.HasPrefix(segment, "*") {
			continue
		}
		key := segment[1:]
		value, ok := params[key]
		if !ok || value == "" {
			return "", fmt.Errorf("route %q requires parameter %q", name, key)
		}
		segments[i] = url.PathEscape(value)
	}
	return strings.Join(segments, "/"), nil
}
