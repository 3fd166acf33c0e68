// Package pointers converts scene documents between their persisted form,
// where scenes, nodes and resources reference each other by array index,
// and a nested form where every reference is replaced by the value it
// points to.
//
// The flat form is what document generations store. The nested form is
// what editors work on: nodes are keyed by id, model derivatives by
// "quality/usage" and derivative assets by uri.
package pointers

// DocumentType is the asset type of scene documents.
const DocumentType = "application/si-dpo-3d.document+json"

// DefaultUnits is used for scenes that do not declare their units.
const DefaultUnits = "cm"

// Object is an opaque JSON object: cameras, lights, metas and setups are
// carried through the transform without interpretation.
type Object = map[string]any

// Asset describes the document itself.
type Asset struct {
	Type      string `json:"type"`
	Version   string `json:"version"`
	Generator string `json:"generator,omitempty"`
	Copyright string `json:"copyright,omitempty"`
}

// Document is the flat, index-referencing form of a scene document.
type Document struct {
	Asset   Asset    `json:"asset"`
	Scene   int      `json:"scene"`
	Scenes  []Scene  `json:"scenes"`
	Nodes   []Node   `json:"nodes,omitempty"`
	Cameras []Object `json:"cameras,omitempty"`
	Lights  []Object `json:"lights,omitempty"`
	Models  []Model  `json:"models,omitempty"`
	Metas   []Object `json:"metas,omitempty"`
	Setups  []Object `json:"setups,omitempty"`
}

type Scene struct {
	Name  string `json:"name,omitempty"`
	Units string `json:"units,omitempty"`
	Nodes []int  `json:"nodes,omitempty"`
	Meta  *int   `json:"meta,omitempty"`
	Setup *int   `json:"setup,omitempty"`
}

// Node is a scene graph node. Resource fields hold indices into the
// document's arrays.
type Node struct {
	ID          string    `json:"id,omitempty"`
	Name        string    `json:"name,omitempty"`
	Matrix      []float64 `json:"matrix,omitempty"`
	Translation []float64 `json:"translation,omitempty"`
	Rotation    []float64 `json:"rotation,omitempty"`
	Scale       []float64 `json:"scale,omitempty"`
	Children    []int     `json:"children,omitempty"`
	Camera      *int      `json:"camera,omitempty"`
	Light       *int      `json:"light,omitempty"`
	Model       *int      `json:"model,omitempty"`
	Meta        *int      `json:"meta,omitempty"`
}

type BoundingBox struct {
	Min []float64 `json:"min"`
	Max []float64 `json:"max"`
}

type Model struct {
	Units       string       `json:"units,omitempty"`
	BoundingBox *BoundingBox `json:"boundingBox,omitempty"`
	Derivatives []Derivative `json:"derivatives,omitempty"`
	Translation []float64    `json:"translation,omitempty"`
	Rotation    []float64    `json:"rotation,omitempty"`
	ShadowSide  string       `json:"shadowSide,omitempty"`
	Material    Object       `json:"material,omitzero"`
	Annotations []Object     `json:"annotations,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
}

// Derivative is one rendition of a model for a given quality and usage.
type Derivative struct {
	Usage   string       `json:"usage,omitempty"`
	Quality string       `json:"quality,omitempty"`
	Assets  []ModelAsset `json:"assets,omitempty"`
}

// ModelAsset is a file making up a derivative.
type ModelAsset struct {
	URI       string `json:"uri"`
	Type      string `json:"type,omitempty"`
	Part      string `json:"part,omitempty"`
	MimeType  string `json:"mimeType,omitempty"`
	ByteSize  int64  `json:"byteSize,omitempty"`
	NumFaces  int64  `json:"numFaces,omitempty"`
	ImageSize int64  `json:"imageSize,omitempty"`
	MapType   string `json:"mapType,omitempty"`
}

// DerefDocument is the nested form of a Document. Only the document's
// root scene is kept.
type DerefDocument struct {
	Asset Asset      `json:"asset"`
	Scene DerefScene `json:"scene"`
}

type DerefScene struct {
	Name  string                  `json:"name,omitempty"`
	Units string                  `json:"units,omitempty"`
	Nodes *OrderedMap[*DerefNode] `json:"nodes"`
	Meta  Object                  `json:"meta,omitzero"`
	Setup Object                  `json:"setup,omitzero"`
}

// DerefNode holds its children directly. Empty objects are kept when
// serialized; only absent ones are omitted.
type DerefNode struct {
	ID          string                  `json:"id"`
	Name        string                  `json:"name,omitempty"`
	Matrix      []float64               `json:"matrix,omitempty"`
	Translation []float64               `json:"translation,omitempty"`
	Rotation    []float64               `json:"rotation,omitempty"`
	Scale       []float64               `json:"scale,omitempty"`
	Children    *OrderedMap[*DerefNode] `json:"children,omitempty"`
	Camera      Object                  `json:"camera,omitzero"`
	Light       Object                  `json:"light,omitzero"`
	Model       *DerefModel             `json:"model,omitempty"`
	Meta        Object                  `json:"meta,omitzero"`
}

type DerefModel struct {
	Units       string         `json:"units,omitempty"`
	BoundingBox *BoundingBox   `json:"boundingBox,omitempty"`
	Derivatives *DerivativeMap `json:"derivatives,omitempty"`
	Translation []float64      `json:"translation,omitempty"`
	Rotation    []float64      `json:"rotation,omitempty"`
	ShadowSide  string         `json:"shadowSide,omitempty"`
	Material    Object         `json:"material,omitzero"`
	Annotations []Object       `json:"annotations,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
}

type DerefDerivative struct {
	Usage   string    `json:"usage,omitempty"`
	Quality string    `json:"quality,omitempty"`
	Assets  *AssetMap `json:"assets,omitempty"`
}

// NodeMap holds nodes by id, in document order. Fields of DerefNode must
// use the generic type itself: go1.25 fails to compile the alias there.
type NodeMap = OrderedMap[*DerefNode]

// DerivativeMap holds derivatives by "quality/usage".
type DerivativeMap = OrderedMap[*DerefDerivative]

// AssetMap holds derivative assets by uri.
type AssetMap = OrderedMap[*ModelAsset]

// DerivativeKey returns the key of d in a DerivativeMap.
func DerivativeKey(quality, usage string) string {
	return quality + "/" + usage
}
