package launcher

import (
	"errors"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/Bhaskers-Blu-Org2/idevice-app-launcher/internal/device"
	"github.com/Bhaskers-Blu-Org2/idevice-app-launcher/internal/gdbremote"
)

type userMessage struct {
	kind error
	key  string
	en   string
	es   string
}

// userMessages maps each error kind to its user-facing text.
var userMessages = []userMessage{
	{
		kind: device.ErrPackageListUnavailable,
		key:  "PackageListUnavailable",
		en:   "Unable to list installed applications. Is ideviceinstaller installed?",
		es:   "No se pueden listar las aplicaciones instaladas. ¿Está instalado ideviceinstaller?",
	},
	{
		kind: device.ErrPackageListFormat,
		key:  "PackageListFormatError",
		en:   "Unable to parse the list of installed applications.",
		es:   "No se puede interpretar la lista de aplicaciones instaladas.",
	},
	{
		kind: device.ErrPackageNotInstalled,
		key:  "PackageNotInstalled",
		en:   "The application is not installed on the device.",
		es:   "La aplicación no está instalada en el dispositivo.",
	},
	{
		kind: device.ErrNoDeviceAttached,
		key:  "NoDeviceAttached",
		en:   "No iOS device is attached.",
		es:   "No hay ningún dispositivo iOS conectado.",
	},
	{
		kind: device.ErrMountingDiskImage,
		key:  "ErrorMountingDiskImage",
		en:   "Unable to mount the developer disk image on the device.",
		es:   "No se puede montar la imagen de disco de desarrollador en el dispositivo.",
	},
	{
		kind: device.ErrGetDeviceInfo,
		key:  "FailedGetDeviceInfo",
		en:   "Unable to read device information. Is the device unlocked and trusted?",
		es:   "No se puede leer la información del dispositivo. ¿Está desbloqueado y es de confianza?",
	},
	{
		kind: device.ErrFindDeveloperDiskImage,
		key:  "FailedFindDeveloperDiskImage",
		en:   "Unable to find a developer disk image for the device's iOS version.",
		es:   "No se encuentra una imagen de disco de desarrollador para la versión de iOS del dispositivo.",
	},
	{
		kind: ErrProxySpawnFailed,
		key:  "ProxySpawnFailed",
		en:   "Unable to start idevicedebugserverproxy.",
		es:   "No se puede iniciar idevicedebugserverproxy.",
	},
	{
		kind: gdbremote.ErrLaunchTimeout,
		key:  "LaunchTimeout",
		en:   "Timed out launching the application.",
		es:   "Se agotó el tiempo para iniciar la aplicación.",
	},
	{
		kind: gdbremote.ErrLaunchFailed,
		key:  "LaunchFailed",
		en:   "The application failed to launch.",
		es:   "No se pudo iniciar la aplicación.",
	},
}

var (
	supported = []language.Tag{language.English, language.Spanish}
	matcher   = language.NewMatcher(supported)
	messages  = newCatalog()
)

func newCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for _, m := range userMessages {
		_ = b.SetString(language.English, m.key, m.en)
		_ = b.SetString(language.Spanish, m.key, m.es)
	}
	return b
}

// Message returns a one-line English message for err.
func Message(err error) string {
	return MessageFor(language.English, err)
}

// MessageFor returns a one-line message for err in the closest supported
// language, English when none is close. Errors of an unknown kind are
// described by their own text.
func MessageFor(tag language.Tag, err error) string {
	if err == nil {
		return ""
	}
	_, idx, _ := matcher.Match(tag)
	for _, m := range userMessages {
		if errors.Is(err, m.kind) {
			p := message.NewPrinter(supported[idx], message.Catalog(messages))
			return p.Sprintf(message.Key(m.key, m.en))
		}
	}
	return err.Error()
}

// Kind returns the catalog key naming err's kind, or "" if err is not
// one of the launcher's error kinds.
func Kind(err error) string {
	for _, m := range userMessages {
		if errors.Is(err, m.kind) {
			return m.key
		}
	}
	return ""
}
