package persist

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
)

// Button is one virtual scene-button binding: an 8-bit button id and the
// virtual node id (spec §4.4 CreateButton/DeleteButton) that represents
// it on the wire, nested under the physical node that owns it.
type Button struct {
	ID            byte `xml:"id,attr"`
	VirtualNodeID byte `xml:",chardata"`
}

// NodeButtons groups every button a single physical node owns.
type NodeButtons struct {
	ID      byte     `xml:"id,attr"`
	Buttons []Button `xml:"Button"`
}

// ButtonMap is the full contents of zwbutton.xml, shared across every
// network this process drives (buttons are a controller-wide resource,
// not per-home-id):
//
//	<Nodes version="1">
//	  <Node id="12"><Button id="1">50</Button></Node>
//	</Nodes>
type ButtonMap struct {
	XMLName xml.Name      `xml:"Nodes"`
	Version int           `xml:"version,attr"`
	Nodes   []NodeButtons `xml:"Node"`
}

const buttonMapVersion = 1

func buttonMapPath(dir string) string { return filepath.Join(dir, "zwbutton.xml") }

// Set records nodeID's buttonID binding to virtualNodeID, replacing any
// existing binding for that pair.
func (m *ButtonMap) Set(nodeID, buttonID, virtualNodeID byte) {
	for i := range m.Nodes {
		if m.Nodes[i].ID != nodeID {
			continue
		}
		for j := range m.Nodes[i].Buttons {
			if m.Nodes[i].Buttons[j].ID == buttonID {
				m.Nodes[i].Buttons[j].VirtualNodeID = virtualNodeID
				return
			}
		}
		m.Nodes[i].Buttons = append(m.Nodes[i].Buttons, Button{ID: buttonID, VirtualNodeID: virtualNodeID})
		return
	}
	m.Nodes = append(m.Nodes, NodeButtons{ID: nodeID, Buttons: []Button{{ID: buttonID, VirtualNodeID: virtualNodeID}}})
}

// Delete removes nodeID's buttonID binding, if any.
func (m *ButtonMap) Delete(nodeID, buttonID byte) {
	for i := range m.Nodes {
		if m.Nodes[i].ID != nodeID {
			continue
		}
		kept := m.Nodes[i].Buttons[:0]
		for _, b := range m.Nodes[i].Buttons {
			if b.ID != buttonID {
				kept = append(kept, b)
			}
		}
		m.Nodes[i].Buttons = kept
		return
	}
}

// SaveButtonMap writes m to zwbutton.xml under dir.
func SaveButtonMap(dir string, m ButtonMap) error {
	m.Version = buttonMapVersion
	data, err := xml.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("persist: marshal button map: %w", err)
	}
	path := buttonMapPath(dir)
	if err := os.WriteFile(path, append([]byte(xml.Header), data...), 0o644); err != nil {
		return fmt.Errorf("persist: write %s: %w", path, err)
	}
	return nil
}

// LoadButtonMap reads zwbutton.xml under dir.
func LoadButtonMap(dir string) (ButtonMap, error) {
	path := buttonMapPath(dir)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ButtonMap{}, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return ButtonMap{}, fmt.Errorf("persist: read %s: %w", path, err)
	}
	var m ButtonMap
	if err := xml.Unmarshal(data, &m); err != nil {
		return ButtonMap{}, fmt.Errorf("persist: parse %s: %w", path, err)
	}
	if m.Version > buttonMapVersion {
		return ButtonMap{}, fmt.Errorf("file version %d, driver supports up to %d: %w", m.Version, buttonMapVersion, ErrVersionMismatch)
	}
	return m, nil
}
