package pointers

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecorpus-go/internal/errs"
)

const baseAsset = `{"type": "application/si-dpo-3d.document+json", "version": "1"}`

func parseDoc(t *testing.T, s string) *Document {
	t.Helper()
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(s), &doc))
	return &doc
}

func parseDeref(t *testing.T, s string) *DerefDocument {
	t.Helper()
	var deref DerefDocument
	require.NoError(t, json.Unmarshal([]byte(s), &deref))
	return &deref
}

func toJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func loadFixture(t *testing.T) *Document {
	t.Helper()
	data, err := os.ReadFile("testdata/simple.svx.json")
	require.NoError(t, err)
	return parseDoc(t, string(data))
}

func TestFromPointers(t *testing.T) {
	t.Run("copies the scene name and units", func(t *testing.T) {
		deref := parseDeref(t, `{"asset": `+baseAsset+`, "scene": {"name": "My Scene", "units": "km", "nodes": []}}`)
		doc := FromPointers(deref)

		assert.Equal(t, 0, doc.Scene)
		assert.Equal(t, []Scene{{Name: "My Scene", Units: "km"}}, doc.Scenes)
	})

	t.Run("fills missing units", func(t *testing.T) {
		deref := parseDeref(t, `{"asset": `+baseAsset+`, "scene": {"name": "My Scene", "nodes": {}}}`)
		assert.Equal(t, "cm", FromPointers(deref).Scenes[0].Units)
	})

	t.Run("builds node reference arrays", func(t *testing.T) {
		deref := parseDeref(t, `{"asset": `+baseAsset+`, "scene": {"units": "m", "nodes": {
			"Th8JYtrkNCV6": {"id": "Th8JYtrkNCV6", "name": "Camera", "camera": {"type": "perspective"}},
			"aubbHqyLuye2": {"id": "aubbHqyLuye2", "name": "Lights", "children": {
				"Xm20ZazxwRbP": {"id": "Xm20ZazxwRbP", "name": "L1", "light": {"type": "ambient"}}
			}},
			"PeIZ72MDwAGH": {"id": "PeIZ72MDwAGH", "name": "Model", "model": {
				"derivatives": {"High/Web3D": {"assets": {"model.gltf": {"uri": "model.gltf"}}}}
			}}
		}}}`)

		assert.JSONEq(t, `{
			"asset": `+baseAsset+`,
			"scene": 0,
			"scenes": [{"units": "m", "nodes": [0, 1, 3]}],
			"nodes": [
				{"id": "Th8JYtrkNCV6", "name": "Camera", "camera": 0},
				{"id": "aubbHqyLuye2", "name": "Lights", "children": [2]},
				{"id": "Xm20ZazxwRbP", "name": "L1", "light": 0},
				{"id": "PeIZ72MDwAGH", "name": "Model", "model": 0}
			],
			"cameras": [{"type": "perspective"}],
			"lights": [{"type": "ambient"}],
			"models": [{"derivatives": [{"assets": [{"uri": "model.gltf"}]}]}]
		}`, toJSON(t, FromPointers(deref)))
	})

	t.Run("copies node transforms", func(t *testing.T) {
		deref := parseDeref(t, `{"asset": `+baseAsset+`, "scene": {"units": "m", "nodes": {
			"PeIZ72MDwAGH": {
				"id": "PeIZ72MDwAGH", "name": "Model",
				"model": {"units": "cm", "derivatives": {"High/Web3D": {"quality": "High", "usage": "Web3D",
					"assets": {"model.gltf": {"uri": "model.gltf", "type": "Model"}}}}},
				"matrix": [1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1],
				"translation": [1, 2, 3],
				"rotation": [0, 0, 0, 1],
				"scale": [2, 2, 2]
			}
		}}}`)
		doc := FromPointers(deref)

		require.Len(t, doc.Nodes, 1)
		node := doc.Nodes[0]
		assert.Equal(t, []float64{1, 2, 3}, node.Translation)
		assert.Equal(t, []float64{0, 0, 0, 1}, node.Rotation)
		assert.Equal(t, []float64{2, 2, 2}, node.Scale)
		assert.Len(t, node.Matrix, 16)
		assert.Equal(t, []Model{{
			Units: "cm",
			Derivatives: []Derivative{{
				Quality: "High",
				Usage:   "Web3D",
				Assets:  []ModelAsset{{URI: "model.gltf", Type: "Model"}},
			}},
		}}, doc.Models)
	})

	t.Run("builds metas from the scene", func(t *testing.T) {
		deref := parseDeref(t, `{"asset": `+baseAsset+`, "scene": {"units": "m",
			"meta": {"collection": {"titles": {"EN": "Meta Title"}}}, "nodes": []}}`)
		assert.JSONEq(t, `{
			"asset": `+baseAsset+`,
			"scene": 0,
			"scenes": [{"units": "m", "meta": 0}],
			"metas": [{"collection": {"titles": {"EN": "Meta Title"}}}]
		}`, toJSON(t, FromPointers(deref)))
	})

	t.Run("builds metas from nodes before the scene meta", func(t *testing.T) {
		deref := parseDeref(t, `{"asset": `+baseAsset+`, "scene": {"units": "m",
			"meta": {"collection": {"titles": {"EN": "Scene"}}},
			"nodes": {"tk1NvhOtDq6e": {"id": "tk1NvhOtDq6e", "name": "Model", "meta": {"collection": {"titles": {"EN": "Node"}}}}}}}`)
		assert.JSONEq(t, `{
			"asset": `+baseAsset+`,
			"scene": 0,
			"scenes": [{"units": "m", "nodes": [0], "meta": 1}],
			"nodes": [{"id": "tk1NvhOtDq6e", "name": "Model", "meta": 0}],
			"metas": [{"collection": {"titles": {"EN": "Node"}}}, {"collection": {"titles": {"EN": "Scene"}}}]
		}`, toJSON(t, FromPointers(deref)))
	})

	t.Run("builds setups from the scene", func(t *testing.T) {
		deref := parseDeref(t, `{"asset": `+baseAsset+`, "scene": {"units": "m",
			"setup": {"language": {"language": "FR"}}, "nodes": []}}`)
		assert.JSONEq(t, `{
			"asset": `+baseAsset+`,
			"scene": 0,
			"scenes": [{"units": "m", "setup": 0}],
			"setups": [{"language": {"language": "FR"}}]
		}`, toJSON(t, FromPointers(deref)))
	})

	t.Run("deduplicates by identity only", func(t *testing.T) {
		shared := Object{"type": "perspective"}
		nodes := NewOrderedMap[*DerefNode]()
		nodes.Set("a", &DerefNode{ID: "a", Camera: shared})
		nodes.Set("b", &DerefNode{ID: "b", Camera: shared})
		nodes.Set("c", &DerefNode{ID: "c", Camera: Object{"type": "perspective"}})

		doc := FromPointers(&DerefDocument{Scene: DerefScene{Units: "m", Nodes: nodes}})

		require.Len(t, doc.Cameras, 2)
		assert.Equal(t, 0, *doc.Nodes[0].Camera)
		assert.Equal(t, 0, *doc.Nodes[1].Camera)
		assert.Equal(t, 1, *doc.Nodes[2].Camera)
	})

	t.Run("shared nodes get a single index", func(t *testing.T) {
		leaf := &DerefNode{ID: "leaf"}
		left := &DerefNode{ID: "left", Children: NewOrderedMap[*DerefNode]()}
		left.Children.Set("leaf", leaf)
		right := &DerefNode{ID: "right", Children: NewOrderedMap[*DerefNode]()}
		right.Children.Set("leaf", leaf)
		nodes := NewOrderedMap[*DerefNode]()
		nodes.Set("left", left)
		nodes.Set("right", right)

		doc := FromPointers(&DerefDocument{Scene: DerefScene{Nodes: nodes}})

		require.Len(t, doc.Nodes, 3)
		assert.Equal(t, []int{0, 2}, doc.Scenes[0].Nodes)
		assert.Equal(t, []int{1}, doc.Nodes[0].Children)
		assert.Equal(t, []int{1}, doc.Nodes[2].Children)
	})
}

func TestToPointers(t *testing.T) {
	t.Run("dereferences nodes with children", func(t *testing.T) {
		doc := parseDoc(t, `{"asset": `+baseAsset+`, "scene": 0,
			"nodes": [{"name": "Lights", "children": [1]}, {"name": "L1", "light": 0}],
			"scenes": [{"nodes": [0]}],
			"lights": [{"type": "ambient"}]}`)

		deref, err := ToPointers(doc)
		require.NoError(t, err)
		assert.Equal(t, doc.Asset, deref.Asset)
		assert.JSONEq(t, `{"nodes": {
			"0": {"id": "0", "name": "Lights", "children": {"1": {"id": "1", "name": "L1", "light": {"type": "ambient"}}}}
		}}`, toJSON(t, deref.Scene))
	})

	t.Run("dereferences the scene setup", func(t *testing.T) {
		doc := parseDoc(t, `{"asset": `+baseAsset+`, "scene": 0, "scenes": [{"setup": 0}],
			"setups": [{"language": {"language": "FR"}}]}`)

		deref, err := ToPointers(doc)
		require.NoError(t, err)
		assert.JSONEq(t, `{"nodes": {}, "setup": {"language": {"language": "FR"}}}`, toJSON(t, deref.Scene))
	})

	t.Run("dereferences the scene meta", func(t *testing.T) {
		doc := parseDoc(t, `{"asset": `+baseAsset+`, "scene": 0, "scenes": [{"meta": 0}],
			"metas": [{"collection": {"titles": {"FR": "Hello World!"}}}]}`)

		deref, err := ToPointers(doc)
		require.NoError(t, err)
		assert.JSONEq(t, `{"nodes": {}, "meta": {"collection": {"titles": {"FR": "Hello World!"}}}}`, toJSON(t, deref.Scene))
	})

	t.Run("dereferences node meta and model", func(t *testing.T) {
		doc := parseDoc(t, `{"asset": `+baseAsset+`, "scene": 0,
			"nodes": [{"id": "63llEWWkWimp", "name": "Model", "meta": 0, "model": 0}],
			"scenes": [{"nodes": [0]}],
			"metas": [{"collection": {"titles": {"FR": "Hello World!"}}}],
			"models": [{"units": "mm", "derivatives": [{"usage": "Web3D", "quality": "Thumb", "assets": [{"uri": "thumb.glb"}]}]}]}`)

		deref, err := ToPointers(doc)
		require.NoError(t, err)
		assert.JSONEq(t, `{"nodes": {"63llEWWkWimp": {
			"id": "63llEWWkWimp", "name": "Model",
			"meta": {"collection": {"titles": {"FR": "Hello World!"}}},
			"model": {"units": "mm", "derivatives": {"Thumb/Web3D": {"usage": "Web3D", "quality": "Thumb", "assets": {"thumb.glb": {"uri": "thumb.glb"}}}}}
		}}}`, toJSON(t, deref.Scene))
	})

	t.Run("keeps the scene name and units", func(t *testing.T) {
		doc := parseDoc(t, `{"asset": `+baseAsset+`, "scene": 0, "scenes": [{"name": "My Scene", "units": "km"}]}`)

		deref, err := ToPointers(doc)
		require.NoError(t, err)
		assert.JSONEq(t, `{"name": "My Scene", "units": "km", "nodes": {}}`, toJSON(t, deref.Scene))
	})

	t.Run("shared references become the same value", func(t *testing.T) {
		doc := parseDoc(t, `{"asset": `+baseAsset+`, "scene": 0,
			"nodes": [{"id": "a", "model": 0}, {"id": "b", "model": 0}],
			"scenes": [{"nodes": [0, 1]}],
			"models": [{"units": "m"}]}`)

		deref, err := ToPointers(doc)
		require.NoError(t, err)
		a, _ := deref.Scene.Nodes.Get("a")
		b, _ := deref.Scene.Nodes.Get("b")
		assert.Same(t, a.Model, b.Model)

		redoc := FromPointers(deref)
		assert.Len(t, redoc.Models, 1)
	})

	t.Run("leaves the flat document untouched", func(t *testing.T) {
		doc := parseDoc(t, `{"asset": `+baseAsset+`, "scene": 0, "nodes": [{"name": "x"}], "scenes": [{"nodes": [0]}]}`)

		_, err := ToPointers(doc)
		require.NoError(t, err)
		assert.Empty(t, doc.Nodes[0].ID)
	})
}

func TestToPointers_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "no scene",
			doc:  `{"scene": 0, "scenes": []}`,
			want: "document has no valid scene",
		},
		{
			name: "invalid scene index",
			doc:  `{"scene": 1, "scenes": [{}]}`,
			want: "document's scene #1 is invalid",
		},
		{
			name: "invalid node index",
			doc:  `{"scene": 0, "scenes": [{"nodes": [1]}], "nodes": [{"name": "Camera"}]}`,
			want: "invalid node index 1 in scene #0",
		},
		{
			name: "invalid camera index",
			doc:  `{"scene": 0, "scenes": [{"nodes": [0]}], "nodes": [{"name": "CAMERA", "camera": 0}]}`,
			want: "invalid camera index 0 in node #0",
		},
		{
			name: "invalid light index",
			doc:  `{"scene": 0, "scenes": [{"nodes": [0]}], "nodes": [{"name": "LIGHT", "light": 0}]}`,
			want: "invalid light index 0 in node #0",
		},
		{
			name: "invalid model index",
			doc:  `{"scene": 0, "scenes": [{"nodes": [0]}], "nodes": [{"name": "MODEL", "model": 0}]}`,
			want: "invalid model index 0 in node #0",
		},
		{
			name: "invalid meta index",
			doc:  `{"scene": 0, "scenes": [{"nodes": [0]}], "nodes": [{"name": "META", "meta": 0}]}`,
			want: "invalid meta index 0 in node #0",
		},
		{
			name: "invalid child index",
			doc:  `{"scene": 0, "scenes": [{"nodes": [0]}], "nodes": [{"name": "Lights", "children": [3]}]}`,
			want: "invalid child index 3 in node #0",
		},
		{
			name: "invalid scene setup",
			doc:  `{"scene": 0, "scenes": [{"setup": 0}]}`,
			want: "invalid setup #0 in scene #0",
		},
		{
			name: "invalid scene meta",
			doc:  `{"scene": 0, "scenes": [{"meta": 0}]}`,
			want: "invalid meta #0 in scene #0",
		},
		{
			name: "node is its own ancestor",
			doc:  `{"scene": 0, "scenes": [{"nodes": [0]}], "nodes": [{"name": "a", "children": [1]}, {"name": "b", "children": [0]}]}`,
			want: "node #0 is its own ancestor",
		},
		{
			name: "duplicate sibling ids",
			doc:  `{"scene": 0, "scenes": [{"nodes": [0, 1]}], "nodes": [{"id": "x"}, {"id": "x"}]}`,
			want: `duplicate node id "x" in scene #0`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ToPointers(parseDoc(t, tt.doc))
			require.Error(t, err)
			assert.EqualError(t, err, tt.want)

			var refErr *ReferenceError
			assert.True(t, errors.As(err, &refErr), "error should be a *ReferenceError")
			assert.True(t, errors.Is(err, errs.ErrBadRequest), "error should be a bad request")
		})
	}
}

func TestRoundTrip(t *testing.T) {
	t.Run("fixture can be dereferenced", func(t *testing.T) {
		doc := loadFixture(t)

		deref, err := ToPointers(doc)
		require.NoError(t, err)
		assert.Equal(t, doc.Asset, deref.Asset)
		assert.Equal(t, "Scene", deref.Scene.Name)
		assert.Equal(t, []string{"Th8JYtrkNCV6", "aubbHqyLuye2", "ot9vj20DZ6Y5"}, deref.Scene.Nodes.Keys())

		model, ok := deref.Scene.Nodes.Get("ot9vj20DZ6Y5")
		require.True(t, ok)
		assert.Equal(t, Object{"collection": map[string]any{"titles": map[string]any{"EN": "Meta Title"}}}, model.Meta)
		assert.Equal(t, []string{"High/Web3D", "Low/Web3D"}, model.Model.Derivatives.Keys())

		lights, _ := deref.Scene.Nodes.Get("aubbHqyLuye2")
		assert.Equal(t, []string{"Xm20ZazxwRbP", "U1k6zEFEy5fQ"}, lights.Children.Keys())
	})

	t.Run("fixture survives a round trip", func(t *testing.T) {
		doc := loadFixture(t)

		deref, err := ToPointers(doc)
		require.NoError(t, err)
		assert.Equal(t, doc, FromPointers(deref))
	})

	t.Run("round trip through JSON", func(t *testing.T) {
		doc := loadFixture(t)

		deref, err := ToPointers(doc)
		require.NoError(t, err)
		reparsed := parseDeref(t, toJSON(t, deref))
		assert.Equal(t, doc, FromPointers(reparsed))
	})

	t.Run("empty objects survive JSON", func(t *testing.T) {
		doc := parseDoc(t, `{"asset": `+baseAsset+`, "scene": 0,
			"scenes": [{"units": "m", "nodes": [0], "meta": 1, "setup": 0}],
			"nodes": [{"id": "a", "meta": 0, "children": [1]}, {"id": "b", "camera": 0, "light": 0, "model": 0}],
			"cameras": [{}],
			"lights": [{}],
			"models": [{"units": "m", "material": {}}],
			"metas": [{}, {"collection": {}}],
			"setups": [{}]}`)

		deref, err := ToPointers(doc)
		require.NoError(t, err)
		reparsed := parseDeref(t, toJSON(t, deref))

		assert.NotNil(t, reparsed.Scene.Setup)
		a, ok := reparsed.Scene.Nodes.Get("a")
		require.True(t, ok)
		assert.NotNil(t, a.Meta)
		b, ok := a.Children.Get("b")
		require.True(t, ok)
		assert.NotNil(t, b.Camera)
		assert.NotNil(t, b.Light)
		require.NotNil(t, b.Model)
		assert.NotNil(t, b.Model.Material)

		assert.Equal(t, FromPointers(deref), FromPointers(reparsed))
	})

	t.Run("unknown keys are dropped", func(t *testing.T) {
		doc := parseDoc(t, `{"asset": `+baseAsset+`, "scene": 0, "extra": true,
			"scenes": [{"units": "m", "nodes": [0], "extra": true}],
			"nodes": [{"id": "a", "meta": 0, "extra": true}],
			"metas": [{"extra": true}]}`)

		deref, err := ToPointers(doc)
		require.NoError(t, err)
		out := toJSON(t, FromPointers(deref))
		assert.Equal(t, 1, strings.Count(out, `"extra"`), "only the opaque meta keeps its keys: %s", out)
	})

	t.Run("serialization is stable", func(t *testing.T) {
		doc := loadFixture(t)
		var previous string
		for i := 0; i < 3; i++ {
			deref, err := ToPointers(doc)
			require.NoError(t, err)
			doc = FromPointers(deref)
			current := toJSON(t, doc)
			if previous != "" {
				assert.Equal(t, previous, current)
			}
			previous = current
		}
	})

	t.Run("normalizes documents once", func(t *testing.T) {
		doc := parseDoc(t, `{"asset": `+baseAsset+`, "scene": 0,
			"nodes": [{"name": "Model", "model": 0}, {"name": "Camera", "camera": 0}],
			"scenes": [{"nodes": [1, 0]}],
			"cameras": [{"type": "perspective"}],
			"models": [{"units": "m"}]}`)

		deref, err := ToPointers(doc)
		require.NoError(t, err)
		first := FromPointers(deref)
		assert.Equal(t, []int{0, 1}, first.Scenes[0].Nodes)
		assert.Equal(t, "cm", first.Scenes[0].Units)

		deref, err = ToPointers(first)
		require.NoError(t, err)
		assert.Equal(t, first, FromPointers(deref))
	})
}

func TestNewDocument(t *testing.T) {
	doc := NewDocument("chair", "models/chair.glb", 2048)

	assert.Equal(t, DocumentType, doc.Asset.Type)
	require.Len(t, doc.Models, 1)
	asset := doc.Models[0].Derivatives[0].Assets[0]
	assert.Equal(t, "models/chair.glb", asset.URI)
	assert.EqualValues(t, 2048, asset.ByteSize)

	deref, err := ToPointers(doc)
	require.NoError(t, err)
	assert.Equal(t, 3, deref.Scene.Nodes.Len())
	assert.Equal(t, doc, FromPointers(deref))

	other := NewDocument("chair", "models/chair.glb", 2048)
	assert.NotEqual(t, doc.Nodes[0].ID, other.Nodes[0].ID)
}
