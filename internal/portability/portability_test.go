package portability

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/maruel/gyeol/internal/blobstore"
	"github.com/maruel/gyeol/internal/portfolio"
	"github.com/maruel/gyeol/internal/resolve"
	"github.com/maruel/gyeol/internal/storage"
)

var (
	pngData = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01")
	gifData = []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;")
)

type env struct {
	blobs *blobstore.Memory
	store *storage.Store
	e     *Engine
}

func newEnv(t *testing.T) *env {
	t.Helper()
	blobs := blobstore.NewMemory()
	store := storage.New(storage.NewMemoryStorage(0), storage.DefaultKey)
	store.Load(t.Context())
	return &env{blobs: blobs, store: store, e: New(blobs, store)}
}

func (v *env) put(t *testing.T, b blobstore.Blob) string {
	t.Helper()
	key, err := v.blobs.Put(t.Context(), blobstore.NewKey(), b)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	return key
}

func (v *env) save(t *testing.T, d *portfolio.Document) {
	t.Helper()
	if err := v.store.Save(t.Context(), d); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
}

func (v *env) reset(t *testing.T) {
	t.Helper()
	if err := v.blobs.ClearPrefix(t.Context(), blobstore.KeyPrefix); err != nil {
		t.Fatal(err)
	}
	v.save(t, portfolio.Default())
}

// richDocument returns a document referencing two stored images (one of them
// twice), one missing key and a literal URL.
func richDocument(t *testing.T, v *env) (doc *portfolio.Document, png, gif, missing string) {
	t.Helper()
	png = v.put(t, blobstore.Blob{Type: "image/png", Data: pngData})
	gif = v.put(t, blobstore.Blob{Type: "image/gif", Data: gifData})
	missing = blobstore.NewKey()
	doc = portfolio.Default()
	doc.Profile.Name = "Aeloria Studio"
	doc.Profile.ProfileImage = png
	doc.Settings.HeroBackgroundImage = "https://example.com/hero.jpg"
	cid := doc.UpsertCharacter(portfolio.Subject{
		Name:      "Hero",
		MainImage: gif,
		SubImages: []portfolio.SubImage{{Image: png, Description: "again"}, {Image: missing}},
		Tags:      []string{"brave"},
	})
	wid, err := doc.AddWorld(portfolio.World{Name: "Aeloria", IconImage: gif})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := doc.AddWorldCharacter(wid, cid); err != nil {
		t.Fatal(err)
	}
	return doc, png, gif, missing
}

func TestArchiveRoundTrip(t *testing.T) {
	ctx := t.Context()
	src := newEnv(t)
	doc, png, gif, _ := richDocument(t, src)
	src.save(t, doc)

	var buf bytes.Buffer
	st, err := src.e.ExportArchive(ctx, &buf)
	if err != nil {
		t.Fatalf("ExportArchive() error = %v", err)
	}
	if st != (Stats{Images: 2, Missing: 1}) {
		t.Errorf("Stats = %+v", st)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	// Keys are collected walking object fields in sorted order: the character's
	// mainImage comes first.
	want := []string{"data.json", "images/" + blobstore.FileName(gif), "images/" + blobstore.FileName(png)}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("entries = %v, want %v", names, want)
	}
	data, err := readEntry(zr.File[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "{\n  \"profile\"") {
		t.Errorf("data.json is not indented:\n%.80s", data)
	}

	dst := newEnv(t)
	st, err = dst.e.ImportArchive(ctx, bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("ImportArchive() error = %v", err)
	}
	if st.Images != 2 {
		t.Errorf("imported %d images", st.Images)
	}
	if got := dst.store.Current(); !reflect.DeepEqual(got, src.store.Current()) {
		t.Errorf("document mismatch:\n got %+v\nwant %+v", got, src.store.Current())
	}
	for key, want := range map[string][]byte{png: pngData, gif: gifData} {
		b, ok, err := dst.blobs.Get(ctx, key)
		if err != nil || !ok || !bytes.Equal(b.Data, want) {
			t.Errorf("Get(%s) = %v, %v, %v", key, b, ok, err)
		}
		if !strings.HasPrefix(b.Type, "image/") {
			t.Errorf("Type = %q, want sniffed image type", b.Type)
		}
	}
}

func TestEmbeddedRoundTrip(t *testing.T) {
	ctx := t.Context()
	src := newEnv(t)
	doc, png, _, _ := richDocument(t, src)
	src.save(t, doc)

	var first bytes.Buffer
	st, err := src.e.ExportEmbedded(ctx, &first)
	if err != nil {
		t.Fatalf("ExportEmbedded() error = %v", err)
	}
	if st != (Stats{Images: 2, Missing: 1}) {
		t.Errorf("Stats = %+v", st)
	}
	out := first.String()
	if strings.Contains(out, blobstore.KeyPrefix) {
		t.Error("embedded export still holds stored keys")
	}
	if !strings.Contains(out, `"profileImage": "data:image/png;base64,`) {
		t.Errorf("profile image not inlined:\n%s", out)
	}

	dst := newEnv(t)
	if _, err := dst.e.Import(ctx, "backup.JSON", bytes.NewReader(first.Bytes())); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	got := dst.store.Current()
	if got.Profile.ProfileImage == png || !blobstore.IsKey(got.Profile.ProfileImage) {
		t.Errorf("ProfileImage = %q, want a new stored key", got.Profile.ProfileImage)
	}
	// The same image referenced twice maps to one key.
	if got.Characters[0].SubImages[0].Image != got.Profile.ProfileImage {
		t.Error("identical images must share a key")
	}
	// The missing image was exported as empty.
	if got.Characters[0].SubImages[1].Image != "" {
		t.Errorf("missing image = %q", got.Characters[0].SubImages[1].Image)
	}
	if keys, _ := dst.blobs.Keys(ctx, blobstore.KeyPrefix); len(keys) != 2 {
		t.Errorf("Keys() = %v", keys)
	}

	// Modulo key identity, the content is unchanged: exporting again yields the
	// same bytes.
	var second bytes.Buffer
	if _, err := dst.e.ExportEmbedded(ctx, &second); err != nil {
		t.Fatal(err)
	}
	if first.String() != second.String() {
		t.Errorf("second export differs:\n%s\n---\n%s", first.String(), second.String())
	}
}

func TestAeloriaScenario(t *testing.T) {
	ctx := t.Context()
	v := newEnv(t)
	doc := portfolio.Default()
	if _, err := doc.AddWorld(portfolio.World{Name: "Aeloria"}); err != nil {
		t.Fatal(err)
	}
	v.save(t, doc)
	var buf bytes.Buffer
	if _, err := v.e.ExportEmbedded(ctx, &buf); err != nil {
		t.Fatal(err)
	}
	v.reset(t)
	if len(v.store.Current().Worlds) != 0 {
		t.Fatal("reset left worlds")
	}
	if _, err := v.e.Import(ctx, EmbeddedName, &buf); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if got := v.store.Current().Worlds; len(got) != 1 || got[0].Name != "Aeloria" {
		t.Errorf("worlds = %+v", got)
	}
}

func TestArchiveBlobScenario(t *testing.T) {
	ctx := t.Context()
	v := newEnv(t)
	key := v.put(t, blobstore.Blob{Type: "image/png", Data: pngData})
	doc := portfolio.Default()
	doc.Profile.ProfileImage = key
	v.save(t, doc)

	var buf bytes.Buffer
	if _, err := v.e.Export(ctx, FormatArchive, &buf); err != nil {
		t.Fatal(err)
	}
	if err := v.blobs.ClearPrefix(ctx, blobstore.KeyPrefix); err != nil {
		t.Fatal(err)
	}
	if _, err := v.e.Import(ctx, ArchiveName, &buf); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	urls := resolve.NewObjectURLs()
	r, err := resolve.Resolve(ctx, v.blobs, urls, key)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Release()
	b, ok := urls.Lookup(r.URL)
	if !ok || !bytes.Equal(b.Data, pngData) {
		t.Errorf("resolved %v, %v", b, ok)
	}
}

func TestImportUnsupported(t *testing.T) {
	ctx := t.Context()
	v := newEnv(t)
	doc, _, _, _ := richDocument(t, v)
	v.save(t, doc)
	before := v.store.Current()
	beforeKeys, _ := v.blobs.Keys(ctx, "")

	for _, name := range []string{"notes.txt", "archive", "data.json.bak"} {
		_, err := v.e.Import(ctx, name, strings.NewReader(`{"profile":{"name":"X"}}`))
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("Import(%q) error = %v, want ErrUnsupportedFormat", name, err)
		}
	}
	if !reflect.DeepEqual(v.store.Current(), before) {
		t.Error("document changed")
	}
	if keys, _ := v.blobs.Keys(ctx, ""); !reflect.DeepEqual(keys, beforeKeys) {
		t.Errorf("blobs changed: %v", keys)
	}
}

func TestImportArchiveMalformed(t *testing.T) {
	ctx := t.Context()
	tests := []struct {
		name    string
		entries map[string]string
		want    error
	}{
		{"MissingDocument", map[string]string{"images/img__x": "data"}, ErrMissingDocument},
		{"CorruptDocument", map[string]string{"data.json": "{", "images/img__x": "data"}, nil},
		{"NotObject", map[string]string{"data.json": "[]", "images/img__x": "data"}, portfolio.ErrNotObject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newEnv(t)
			doc := portfolio.Default()
			doc.Profile.Name = "kept"
			v.save(t, doc)
			data := buildZip(t, tt.entries)
			_, err := v.e.ImportArchive(ctx, bytes.NewReader(data), int64(len(data)))
			if err == nil {
				t.Fatal("ImportArchive() succeeded")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if v.store.Current().Profile.Name != "kept" {
				t.Error("document changed")
			}
			if keys, _ := v.blobs.Keys(ctx, ""); len(keys) != 0 {
				t.Errorf("blobs written: %v", keys)
			}
		})
	}
	t.Run("NotZip", func(t *testing.T) {
		v := newEnv(t)
		if _, err := v.e.Import(ctx, "x.zip", strings.NewReader("not a zip")); err == nil {
			t.Error("Import() succeeded")
		}
	})
}

func TestImportArchiveForeignEntries(t *testing.T) {
	ctx := t.Context()
	v := newEnv(t)
	data := buildZip(t, map[string]string{
		"data.json":              `{"profile":{"name":"A"}}`,
		"images/readme.txt":      "ignored",
		"images/nested/img__abc": "ignored",
		"images/img__abc":        "kept",
		"other/img__def":         "ignored",
	})
	st, err := v.e.ImportArchive(ctx, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("ImportArchive() error = %v", err)
	}
	keys, _ := v.blobs.Keys(ctx, "")
	if st.Images != 1 || !reflect.DeepEqual(keys, []string{"img:abc"}) {
		t.Errorf("Stats = %+v, Keys() = %v", st, keys)
	}
	if v.store.Current().Profile.Name != "A" {
		t.Error("document not imported")
	}
}

func TestImportJSONLegacy(t *testing.T) {
	ctx := t.Context()
	v := newEnv(t)
	in := `{
  "profile": {"name": "Old", "profileImage": "data:image/gif;base64,R0lGODlhAQABAAAAADs="},
  "characters": [
    {"id": "1700000000000", "name": "Hero", "subCategory": "Knight",
     "mainImage": "data:image/gif;base64,R0lGODlhAQABAAAAADs=",
     "subImages": [{"image": "https://example.com/x.png", "description": ""}]}
  ],
  "unknownField": "data:text/plain,ignored"
}`
	st, err := v.e.ImportJSON(ctx, strings.NewReader(in))
	if err != nil {
		t.Fatalf("ImportJSON() error = %v", err)
	}
	got := v.store.Current()
	c := got.Characters[0]
	if !blobstore.IsKey(got.Profile.ProfileImage) || c.MainImage != got.Profile.ProfileImage {
		t.Errorf("ProfileImage = %q, MainImage = %q", got.Profile.ProfileImage, c.MainImage)
	}
	if c.SubImages[0].Image != "https://example.com/x.png" {
		t.Errorf("URL rewritten to %q", c.SubImages[0].Image)
	}
	if !reflect.DeepEqual(c.SubCategories, []string{"Knight"}) {
		t.Errorf("SubCategories = %v", c.SubCategories)
	}
	if st.Images != 1 {
		t.Errorf("Stats = %+v", st)
	}
	b, ok, err := v.blobs.Get(ctx, c.MainImage)
	if err != nil || !ok || b.Type != "image/gif" || !bytes.HasPrefix(b.Data, []byte("GIF89a")) {
		t.Errorf("Get() = %+v, %v, %v", b, ok, err)
	}
	if keys, _ := v.blobs.Keys(ctx, ""); len(keys) != 1 {
		t.Errorf("unknown fields must not produce blobs: %v", keys)
	}
}

func TestImportJSONInvalid(t *testing.T) {
	ctx := t.Context()
	for name, in := range map[string]string{
		"BadDataURI": `{"profile":{"profileImage":"data:image/png;base64,****"},"worlds":[{"name":"X","iconImage":"data:image/png;base64,AA=="}]}`,
		"NotJSON":    `{"profile":`,
		"NotObject":  `["a"]`,
	} {
		t.Run(name, func(t *testing.T) {
			v := newEnv(t)
			if _, err := v.e.ImportJSON(ctx, strings.NewReader(in)); err == nil {
				t.Fatal("ImportJSON() succeeded")
			}
			if keys, _ := v.blobs.Keys(ctx, ""); len(keys) != 0 {
				t.Errorf("blobs written: %v", keys)
			}
			if !reflect.DeepEqual(v.store.Current(), portfolio.Default()) {
				t.Error("document changed")
			}
		})
	}
}

func TestImportNotPersisted(t *testing.T) {
	ctx := t.Context()
	blobs := blobstore.NewMemory()
	ls := storage.NewMemoryStorage(1024)
	store := storage.New(ls, storage.DefaultKey)
	store.Load(ctx)
	e := New(blobs, store)
	in := `{"profile":{"name":"` + strings.Repeat("x", 2048) + `","profileImage":"data:image/gif;base64,R0lGODlhAQABAAAAADs="}}`
	st, err := e.Import(ctx, "legacy.json", strings.NewReader(in))
	if !errors.Is(err, storage.ErrNotPersisted) {
		t.Fatalf("Import() error = %v, want ErrNotPersisted", err)
	}
	if st.Images != 1 {
		t.Errorf("Images = %d, want 1", st.Images)
	}
	cur := store.Current()
	if len(cur.Profile.Name) != 2048 || !blobstore.IsKey(cur.Profile.ProfileImage) {
		t.Errorf("imported document not applied: image %q", cur.Profile.ProfileImage)
	}
	if _, ok, _ := blobs.Get(ctx, cur.Profile.ProfileImage); !ok {
		t.Error("imported image not stored")
	}
	if _, ok, _ := ls.GetItem(storage.DefaultKey); ok {
		t.Error("document must not be persisted")
	}
}

func TestExportSkipsUnreadable(t *testing.T) {
	ctx := t.Context()
	v := newEnv(t)
	doc := portfolio.Default()
	doc.Profile.ProfileImage = blobstore.NewKey()
	v.save(t, doc)
	e := New(failingGet{v.blobs}, v.store)

	var buf bytes.Buffer
	st, err := e.ExportArchive(ctx, &buf)
	if err != nil || st != (Stats{Failed: 1}) {
		t.Errorf("ExportArchive() = %+v, %v", st, err)
	}
	buf.Reset()
	st, err = e.ExportEmbedded(ctx, &buf)
	if err != nil || st != (Stats{Failed: 1}) {
		t.Errorf("ExportEmbedded() = %+v, %v", st, err)
	}
	if !strings.Contains(buf.String(), `"profileImage": ""`) {
		t.Error("unreadable image must export as empty")
	}
}

func TestFormat(t *testing.T) {
	if FormatArchive.FileName() != "geurim-gyeol-portfolio.zip" || FormatEmbedded.FileName() != "geurim-gyeol-portfolio-embedded.json" {
		t.Error("unexpected file names")
	}
	if err := Format("tar").Validate(); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Validate() error = %v", err)
	}
	if _, err := newEnv(t).e.Export(t.Context(), "tar", &bytes.Buffer{}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Export() error = %v", err)
	}
}

func buildZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(data)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type failingGet struct{ blobstore.Store }

func (failingGet) Get(context.Context, string) (blobstore.Blob, bool, error) {
	return blobstore.Blob{}, false, errors.New("io error")
}
