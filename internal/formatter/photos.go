package formatter

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/JakeFAU/rescue-radar/internal/animal"
)

// PlaceholderPhotoURL stands in for listings that publish no photos.
const PlaceholderPhotoURL = "/static/img/dog-placeholder.png"

// WithPlaceholder substitutes the placeholder when a record has no photos.
// It is applied when records leave the service, after scoring has seen the real count.
func WithPlaceholder(a animal.Animal) animal.Animal {
	if len(a.Photos) == 0 {
		a.Photos = []string{PlaceholderPhotoURL}
	}
	return a
}

// highest returns the first non-empty candidate; callers list them best first.
func highest(candidates ...string) string {
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return ""
}

// photoList accumulates distinct photo URLs in order.
type photoList struct {
	urls []string
	seen map[string]struct{}
}

func newPhotoList() *photoList {
	return &photoList{urls: []string{}, seen: map[string]struct{}{}}
}

func (p *photoList) add(url string) {
	url = strings.TrimSpace(url)
	if url == "" {
		return
	}
	if _, ok := p.seen[url]; ok {
		return
	}
	p.seen[url] = struct{}{}
	p.urls = append(p.urls, url)
}

func petfinderPhotos(photos []PetfinderPhoto) []string {
	out := newPhotoList()
	for _, ph := range photos {
		out.add(highest(ph.Full, ph.Large, ph.Medium, ph.Small))
	}
	return out.urls
}

func storePhotos(photos []string) []string {
	out := newPhotoList()
	for _, url := range photos {
		out.add(url)
	}
	return out.urls
}

type rgPictureSize struct {
	URL string `json:"url"`
}

type rgPicture struct {
	Original rgPictureSize `json:"original"`
	Large    rgPictureSize `json:"large"`
	Small    rgPictureSize `json:"small"`
	Order    int           `json:"order"`
}

// rescueGroupsPhotos follows the pictures relationship into the side table.
// Refs with no matching side-table entry are skipped.
func rescueGroupsPhotos(r RescueGroupsRaw) []string {
	type ordered struct {
		url   string
		order int
		index int
	}
	var pics []ordered
	for i, ref := range r.Relationships["pictures"].Data {
		res, ok := r.Included[ResourceRef{Type: ref.Type, ID: ref.ID}]
		if !ok || len(res.Attributes) == 0 {
			continue
		}
		var pic rgPicture
		if err := json.Unmarshal(res.Attributes, &pic); err != nil {
			continue
		}
		url := highest(pic.Original.URL, pic.Large.URL, pic.Small.URL)
		if url == "" {
			continue
		}
		pics = append(pics, ordered{url: url, order: pic.Order, index: i})
	}
	slices.SortStableFunc(pics, func(a, b ordered) int {
		if a.order != b.order {
			return a.order - b.order
		}
		return a.index - b.index
	})
	out := newPhotoList()
	for _, p := range pics {
		out.add(p.url)
	}
	if len(out.urls) == 0 {
		out.add(r.Attributes.PictureThumbnailURL)
	}
	return out.urls
}
