package pointers

import (
	"strings"

	"github.com/google/uuid"
)

// NewNodeID returns a random 12 character node id.
func NewNodeID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// NewDocument returns the document of a freshly imported scene: a camera,
// a pair of lights and one node showing the model at modelURI.
func NewDocument(name, modelURI string, byteSize int64) *Document {
	zero := 0
	return &Document{
		Asset: Asset{
			Type:      DocumentType,
			Version:   "1.0",
			Generator: "ecorpus",
		},
		Scene: 0,
		Scenes: []Scene{{
			Name:  name,
			Units: "m",
			Nodes: []int{0, 1, 4},
			Setup: &zero,
		}},
		Nodes: []Node{
			{ID: NewNodeID(), Name: "Camera", Camera: ptr(0), Translation: []float64{0, 0, 0}},
			{ID: NewNodeID(), Name: "Lights", Children: []int{2, 3}},
			{ID: NewNodeID(), Name: "Key", Light: ptr(0), Rotation: []float64{-0.3, 0.2, 0, 0.93}},
			{ID: NewNodeID(), Name: "Ambient", Light: ptr(1)},
			{ID: NewNodeID(), Name: name, Model: ptr(0), Meta: ptr(0)},
		},
		Cameras: []Object{{
			"type": "perspective",
			"perspective": Object{
				"yfov":  52.0,
				"znear": 0.1,
				"zfar":  10000.0,
			},
		}},
		Lights: []Object{
			{"type": "directional", "color": []any{1.0, 1.0, 1.0}, "intensity": 1.0},
			{"type": "ambient", "color": []any{1.0, 1.0, 1.0}, "intensity": 0.5},
		},
		Models: []Model{{
			Units: "m",
			Derivatives: []Derivative{{
				Usage:   "Web3D",
				Quality: "High",
				Assets: []ModelAsset{{
					URI:       modelURI,
					Type:      "Model",
					ByteSize:  byteSize,
					ImageSize: 8192,
				}},
			}},
		}},
		Metas: []Object{{
			"collection": Object{
				"titles": Object{"EN": name, "FR": name},
			},
		}},
		Setups: []Object{{
			"units": "m",
			"interface": Object{
				"visible": true,
				"logo":    true,
				"menu":    true,
				"tools":   true,
			},
			"viewer": Object{
				"shader":   "Default",
				"exposure": 1.0,
				"gamma":    2.0,
			},
			"navigation": Object{
				"type":    "Orbit",
				"enabled": true,
			},
			"language": Object{"language": "EN"},
		}},
	}
}
