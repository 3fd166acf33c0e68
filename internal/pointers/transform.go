package pointers

import (
	"fmt"
	"reflect"
	"strconv"
	"unsafe"

	"ecorpus-go/internal/errs"
)

// ReferenceError reports an index that does not resolve in a flat document.
type ReferenceError struct {
	Msg string
}

func (e *ReferenceError) Error() string { return e.Msg }

// Unwrap classifies reference errors as bad requests.
func (e *ReferenceError) Unwrap() error { return errs.ErrBadRequest }

func refErrorf(format string, args ...any) error {
	return &ReferenceError{Msg: fmt.Sprintf(format, args...)}
}

// dereferencer holds the state of one ToPointers call. The caches map an
// origin index to the value built for it, so an index referenced twice
// yields the same value twice.
type dereferencer struct {
	doc      *Document
	scene    int
	nodes    map[int]*DerefNode
	models   map[int]*DerefModel
	visiting map[int]bool
}

// ToPointers expands doc's root scene into a tree. Every index is checked;
// the first one that does not resolve is returned as a *ReferenceError.
// Nodes without an id are keyed by their index.
func ToPointers(doc *Document) (*DerefDocument, error) {
	if len(doc.Scenes) == 0 {
		return nil, refErrorf("document has no valid scene")
	}
	if doc.Scene < 0 || len(doc.Scenes) <= doc.Scene {
		return nil, refErrorf("document's scene #%d is invalid", doc.Scene)
	}

	d := &dereferencer{
		doc:      doc,
		scene:    doc.Scene,
		nodes:    make(map[int]*DerefNode),
		models:   make(map[int]*DerefModel),
		visiting: make(map[int]bool),
	}
	scene := doc.Scenes[doc.Scene]

	nodes, err := d.nodeMap(scene.Nodes, func(idx int) error {
		return refErrorf("invalid node index %d in scene #%d", idx, d.scene)
	})
	if err != nil {
		return nil, err
	}

	out := &DerefDocument{
		Asset: doc.Asset,
		Scene: DerefScene{
			Name:  scene.Name,
			Units: scene.Units,
			Nodes: nodes,
		},
	}
	if scene.Meta != nil {
		if !inRange(*scene.Meta, len(doc.Metas)) {
			return nil, refErrorf("invalid meta #%d in scene #%d", *scene.Meta, d.scene)
		}
		out.Scene.Meta = doc.Metas[*scene.Meta]
	}
	if scene.Setup != nil {
		if !inRange(*scene.Setup, len(doc.Setups)) {
			return nil, refErrorf("invalid setup #%d in scene #%d", *scene.Setup, d.scene)
		}
		out.Scene.Setup = doc.Setups[*scene.Setup]
	}
	return out, nil
}

func inRange(idx, n int) bool {
	return 0 <= idx && idx < n
}

func (d *dereferencer) nodeMap(indices []int, invalid func(int) error) (*NodeMap, error) {
	m := NewOrderedMap[*DerefNode]()
	for _, idx := range indices {
		if !inRange(idx, len(d.doc.Nodes)) {
			return nil, invalid(idx)
		}
		n, err := d.node(idx)
		if err != nil {
			return nil, err
		}
		if prev, ok := m.Get(n.ID); ok && prev != n {
			return nil, refErrorf("duplicate node id %q in scene #%d", n.ID, d.scene)
		}
		m.Set(n.ID, n)
	}
	return m, nil
}

func (d *dereferencer) node(idx int) (*DerefNode, error) {
	if n, ok := d.nodes[idx]; ok {
		return n, nil
	}
	if d.visiting[idx] {
		return nil, refErrorf("node #%d is its own ancestor", idx)
	}
	d.visiting[idx] = true
	defer delete(d.visiting, idx)

	src := d.doc.Nodes[idx]
	n := &DerefNode{
		ID:          src.ID,
		Name:        src.Name,
		Matrix:      src.Matrix,
		Translation: src.Translation,
		Rotation:    src.Rotation,
		Scale:       src.Scale,
	}
	if n.ID == "" {
		n.ID = strconv.Itoa(idx)
	}

	var err error
	if n.Camera, err = resource(src.Camera, d.doc.Cameras, "camera", idx); err != nil {
		return nil, err
	}
	if n.Light, err = resource(src.Light, d.doc.Lights, "light", idx); err != nil {
		return nil, err
	}
	if n.Meta, err = resource(src.Meta, d.doc.Metas, "meta", idx); err != nil {
		return nil, err
	}
	if src.Model != nil {
		if !inRange(*src.Model, len(d.doc.Models)) {
			return nil, refErrorf("invalid model index %d in node #%d", *src.Model, idx)
		}
		if n.Model, err = d.model(*src.Model); err != nil {
			return nil, err
		}
	}

	if len(src.Children) > 0 {
		n.Children, err = d.nodeMap(src.Children, func(child int) error {
			return refErrorf("invalid child index %d in node #%d", child, idx)
		})
		if err != nil {
			return nil, err
		}
	}

	d.nodes[idx] = n
	return n, nil
}

func resource(ref *int, list []Object, kind string, node int) (Object, error) {
	if ref == nil {
		return nil, nil
	}
	if !inRange(*ref, len(list)) {
		return nil, refErrorf("invalid %s index %d in node #%d", kind, *ref, node)
	}
	return list[*ref], nil
}

func (d *dereferencer) model(idx int) (*DerefModel, error) {
	if m, ok := d.models[idx]; ok {
		return m, nil
	}
	src := d.doc.Models[idx]
	m := &DerefModel{
		Units:       src.Units,
		BoundingBox: src.BoundingBox,
		Translation: src.Translation,
		Rotation:    src.Rotation,
		ShadowSide:  src.ShadowSide,
		Material:    src.Material,
		Annotations: src.Annotations,
		Tags:        src.Tags,
	}
	if len(src.Derivatives) > 0 {
		m.Derivatives = NewOrderedMap[*DerefDerivative]()
	}
	for _, deriv := range src.Derivatives {
		key := DerivativeKey(deriv.Quality, deriv.Usage)
		if m.Derivatives.Has(key) {
			return nil, refErrorf("duplicate derivative %s in model #%d", key, idx)
		}
		out := &DerefDerivative{Usage: deriv.Usage, Quality: deriv.Quality}
		if len(deriv.Assets) > 0 {
			out.Assets = NewOrderedMap[*ModelAsset]()
		}
		for i := range deriv.Assets {
			asset := deriv.Assets[i]
			if out.Assets.Has(asset.URI) {
				return nil, refErrorf("duplicate asset %q in model #%d", asset.URI, idx)
			}
			out.Assets.Set(asset.URI, &asset)
		}
		m.Derivatives.Set(key, out)
	}
	d.models[idx] = m
	return m, nil
}

// flattener holds the state of one FromPointers call. Values are
// deduplicated by identity: the same node or resource reached twice gets
// a single index, equal but distinct values get one each.
type flattener struct {
	doc     *Document
	nodes   map[*DerefNode]int
	models  map[*DerefModel]int
	cameras map[unsafe.Pointer]int
	lights  map[unsafe.Pointer]int
	metas   map[unsafe.Pointer]int
	setups  map[unsafe.Pointer]int
}

// FromPointers rebuilds the flat form of deref. Nodes get indices in
// pre-order, a node's resources when the node is visited, then the scene's
// meta and setup. Scenes without units get DefaultUnits.
func FromPointers(deref *DerefDocument) *Document {
	f := &flattener{
		doc:     &Document{Asset: deref.Asset},
		nodes:   make(map[*DerefNode]int),
		models:  make(map[*DerefModel]int),
		cameras: make(map[unsafe.Pointer]int),
		lights:  make(map[unsafe.Pointer]int),
		metas:   make(map[unsafe.Pointer]int),
		setups:  make(map[unsafe.Pointer]int),
	}

	src := deref.Scene
	scene := Scene{Name: src.Name, Units: src.Units}
	if scene.Units == "" {
		scene.Units = DefaultUnits
	}
	for _, n := range src.Nodes.Values() {
		if n != nil {
			scene.Nodes = append(scene.Nodes, f.node(n))
		}
	}
	if src.Meta != nil {
		scene.Meta = ptr(f.object(src.Meta, f.metas, &f.doc.Metas))
	}
	if src.Setup != nil {
		scene.Setup = ptr(f.object(src.Setup, f.setups, &f.doc.Setups))
	}

	f.doc.Scene = 0
	f.doc.Scenes = []Scene{scene}
	return f.doc
}

func ptr(i int) *int { return &i }

func (f *flattener) node(n *DerefNode) int {
	if idx, ok := f.nodes[n]; ok {
		return idx
	}
	idx := len(f.doc.Nodes)
	f.nodes[n] = idx
	f.doc.Nodes = append(f.doc.Nodes, Node{})

	out := Node{
		ID:          n.ID,
		Name:        n.Name,
		Matrix:      n.Matrix,
		Translation: n.Translation,
		Rotation:    n.Rotation,
		Scale:       n.Scale,
	}
	if n.Camera != nil {
		out.Camera = ptr(f.object(n.Camera, f.cameras, &f.doc.Cameras))
	}
	if n.Light != nil {
		out.Light = ptr(f.object(n.Light, f.lights, &f.doc.Lights))
	}
	if n.Model != nil {
		out.Model = ptr(f.model(n.Model))
	}
	if n.Meta != nil {
		out.Meta = ptr(f.object(n.Meta, f.metas, &f.doc.Metas))
	}
	for _, child := range n.Children.Values() {
		if child != nil {
			out.Children = append(out.Children, f.node(child))
		}
	}

	f.doc.Nodes[idx] = out
	return idx
}

func (f *flattener) object(o Object, seen map[unsafe.Pointer]int, list *[]Object) int {
	key := reflect.ValueOf(o).UnsafePointer()
	if idx, ok := seen[key]; ok {
		return idx
	}
	idx := len(*list)
	seen[key] = idx
	*list = append(*list, o)
	return idx
}

func (f *flattener) model(m *DerefModel) int {
	if idx, ok := f.models[m]; ok {
		return idx
	}
	out := Model{
		Units:       m.Units,
		BoundingBox: m.BoundingBox,
		Translation: m.Translation,
		Rotation:    m.Rotation,
		ShadowSide:  m.ShadowSide,
		Material:    m.Material,
		Annotations: m.Annotations,
		Tags:        m.Tags,
	}
	for _, d := range m.Derivatives.Values() {
		if d == nil {
			continue
		}
		deriv := Derivative{Usage: d.Usage, Quality: d.Quality}
		for _, a := range d.Assets.Values() {
			if a != nil {
				deriv.Assets = append(deriv.Assets, *a)
			}
		}
		out.Derivatives = append(out.Derivatives, deriv)
	}
	idx := len(f.doc.Models)
	f.models[m] = idx
	f.doc.Models = append(f.doc.Models, out)
	return idx
}
