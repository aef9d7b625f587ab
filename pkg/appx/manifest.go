// pkg/appx/manifest.go - AppxManifest.xml parsing.

package appx

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/windowsadmins/msixinstaller/pkg/identity"
)

// Extension categories the installer understands.
const (
	CategoryFileTypeAssociation = "windows.fileTypeAssociation"
	CategoryProtocol            = "windows.protocol"
)

// Manifest holds the manifest fields the installer consumes.
type Manifest struct {
	Identity             identity.Identity
	DisplayName          string
	PublisherDisplayName string
	Logo                 string
	Applications         []Application
}

// Application is one <Application> element.
type Application struct {
	ID          string
	Executable  string
	DisplayName string
	Logo        string
	Extensions  []Extension
}

// Extension is a file type association or protocol declaration.
type Extension struct {
	Category    string
	Name        string
	DisplayName string
	FileTypes   []string
	// Executable overrides the application executable when set.
	Executable string
}

// PrimaryApplication returns the first application, which owns the shortcut.
func (m *Manifest) PrimaryApplication() (Application, error) {
	if len(m.Applications) == 0 {
		return Application{}, errors.New("manifest declares no applications")
	}
	return m.Applications[0], nil
}

// AppDisplayName prefers the visual elements name, as shown in the start menu.
func (m *Manifest) AppDisplayName() string {
	if len(m.Applications) > 0 && m.Applications[0].DisplayName != "" {
		return m.Applications[0].DisplayName
	}
	return m.DisplayName
}

// Extensions returns every supported extension across all applications.
func (m *Manifest) Extensions() []Extension {
	var out []Extension
	for _, app := range m.Applications {
		out = append(out, app.Extensions...)
	}
	return out
}

// Element names are matched without namespace so uap, uap3 and desktop
// prefixed elements all decode.
type manifestXML struct {
	XMLName  xml.Name `xml:"Package"`
	Identity struct {
		Name                  string `xml:"Name,attr"`
		Publisher             string `xml:"Publisher,attr"`
		Version               string `xml:"Version,attr"`
		ProcessorArchitecture string `xml:"ProcessorArchitecture,attr"`
		ResourceID            string `xml:"ResourceId,attr"`
	} `xml:"Identity"`
	Properties struct {
		DisplayName          string `xml:"DisplayName"`
		PublisherDisplayName string `xml:"PublisherDisplayName"`
		Logo                 string `xml:"Logo"`
	} `xml:"Properties"`
	Applications []applicationXML `xml:"Applications>Application"`
}

type applicationXML struct {
	ID             string `xml:"Id,attr"`
	Executable     string `xml:"Executable,attr"`
	VisualElements struct {
		DisplayName       string `xml:"DisplayName,attr"`
		Square150x150Logo string `xml:"Square150x150Logo,attr"`
		Logo              string `xml:"Logo,attr"`
	} `xml:"VisualElements"`
	Extensions []extensionXML `xml:"Extensions>Extension"`
}

type extensionXML struct {
	Category            string `xml:"Category,attr"`
	Executable          string `xml:"Executable,attr"`
	FileTypeAssociation *struct {
		Name        string   `xml:"Name,attr"`
		DisplayName string   `xml:"DisplayName"`
		FileTypes   []string `xml:"SupportedFileTypes>FileType"`
	} `xml:"FileTypeAssociation"`
	Protocol *struct {
		Name        string `xml:"Name,attr"`
		DisplayName string `xml:"DisplayName"`
	} `xml:"Protocol"`
}

// ParseManifest decodes an AppxManifest.xml document.
func ParseManifest(r io.Reader) (*Manifest, error) {
	var doc manifestXML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}

	version, err := identity.ParseVersion(doc.Identity.Version)
	if err != nil {
		return nil, fmt.Errorf("manifest identity: %w", err)
	}
	m := &Manifest{
		Identity: identity.Identity{
			Name:         doc.Identity.Name,
			Version:      version,
			Architecture: doc.Identity.ProcessorArchitecture,
			ResourceID:   doc.Identity.ResourceID,
			Publisher:    doc.Identity.Publisher,
		},
		DisplayName:          strings.TrimSpace(doc.Properties.DisplayName),
		PublisherDisplayName: strings.TrimSpace(doc.Properties.PublisherDisplayName),
		Logo:                 strings.TrimSpace(doc.Properties.Logo),
	}
	if err := m.Identity.Validate(); err != nil {
		return nil, err
	}

	for _, a := range doc.Applications {
		app := Application{
			ID:          a.ID,
			Executable:  a.Executable,
			DisplayName: a.VisualElements.DisplayName,
			Logo:        a.VisualElements.Square150x150Logo,
		}
		if app.Logo == "" {
			app.Logo = a.VisualElements.Logo
		}
		for _, e := range a.Extensions {
			switch {
			case e.Category == CategoryFileTypeAssociation && e.FileTypeAssociation != nil:
				app.Extensions = append(app.Extensions, Extension{
					Category:    e.Category,
					Name:        e.FileTypeAssociation.Name,
					DisplayName: e.FileTypeAssociation.DisplayName,
					FileTypes:   e.FileTypeAssociation.FileTypes,
					Executable:  e.Executable,
				})
			case e.Category == CategoryProtocol && e.Protocol != nil:
				app.Extensions = append(app.Extensions, Extension{
					Category:    e.Category,
					Name:        e.Protocol.Name,
					DisplayName: e.Protocol.DisplayName,
					Executable:  e.Executable,
				})
			}
		}
		m.Applications = append(m.Applications, app)
	}
	return m, nil
}
