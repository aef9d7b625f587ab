// pkg/register/extensions.go - protocol and file type association registration.

package register

import (
	"fmt"
	"strings"

	"github.com/windowsadmins/msixinstaller/pkg/appx"
)

func (r *run) extensions(target string) error {
	command := fmt.Sprintf(`"%s" "%%1"`, target)
	for _, ext := range r.job.Extensions {
		var err error
		switch ext.Category {
		case appx.CategoryProtocol:
			err = r.protocol(ext, command)
		case appx.CategoryFileTypeAssociation:
			err = r.fileType(ext, command)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ownNewKey creates key only when it does not exist yet. It reports false,
// with a warning, when the key belongs to someone else.
func (r *run) ownNewKey(key string) (bool, error) {
	exists, err := r.job.Writers.Registry.KeyExists(r.job.Hive, key)
	if err != nil {
		return false, err
	}
	if exists {
		r.warn("Skipping %s: key already exists", key)
		return false, nil
	}
	return true, r.ensureKey(key)
}

// writeCommand creates shell\open\command under a key this run owns.
func (r *run) writeCommand(key, command string) error {
	cmdKey := key + `\shell\open\command`
	if err := r.ensureKey(cmdKey); err != nil {
		return err
	}
	return r.setString(cmdKey, "", command)
}

func (r *run) protocol(ext appx.Extension, command string) error {
	name := strings.ToLower(strings.TrimSpace(ext.Name))
	if name == "" {
		return nil
	}
	key := classesRoot + `\` + name
	owned, err := r.ownNewKey(key)
	if err != nil || !owned {
		return err
	}

	desc := ext.DisplayName
	if desc == "" {
		desc = "URL:" + name
	}
	if err := r.setString(key, "", desc); err != nil {
		return err
	}
	if err := r.setString(key, "URL Protocol", ""); err != nil {
		return err
	}
	return r.writeCommand(key, command)
}

// ProgID returns the programmatic identifier used for a file type association.
func ProgID(packageName, association string) string {
	return SafeName(packageName + "." + association)
}

func (r *run) fileType(ext appx.Extension, command string) error {
	if ext.Name == "" || len(ext.FileTypes) == 0 {
		return nil
	}
	progID := ProgID(r.job.Identity.Name, ext.Name)
	key := classesRoot + `\` + progID
	owned, err := r.ownNewKey(key)
	if err != nil || !owned {
		return err
	}
	if ext.DisplayName != "" {
		if err := r.setString(key, "", ext.DisplayName); err != nil {
			return err
		}
	}
	if err := r.writeCommand(key, command); err != nil {
		return err
	}

	for _, ft := range ext.FileTypes {
		ft = strings.ToLower(strings.TrimSpace(ft))
		if !strings.HasPrefix(ft, ".") {
			continue
		}
		withKey := classesRoot + `\` + ft + `\OpenWithProgids`
		if err := r.ensureKey(withKey); err != nil {
			return err
		}
		if !r.created[strings.ToLower(withKey)] {
			exists, err := r.job.Writers.Registry.ValueExists(r.job.Hive, withKey, progID)
			if err != nil {
				return err
			}
			if exists {
				r.warn("Skipping %s for %s: already associated", progID, ft)
				continue
			}
		}
		if err := r.setString(withKey, progID, ""); err != nil {
			return err
		}
	}
	return nil
}
