package ptp

import (
	"fmt"
	"path"
	"strings"
)

// ObjectFormat is the PTP/MTP object format code.
type ObjectFormat uint16

// Object formats.
const (
	FormatUndefined   ObjectFormat = 0x3000
	FormatAssociation ObjectFormat = 0x3001
	FormatScript      ObjectFormat = 0x3002
	FormatExecutable  ObjectFormat = 0x3003
	FormatText        ObjectFormat = 0x3004
	FormatHTML        ObjectFormat = 0x3005
	FormatAIFF        ObjectFormat = 0x3007
	FormatWAV         ObjectFormat = 0x3008
	FormatMP3         ObjectFormat = 0x3009
	FormatAVI         ObjectFormat = 0x300A
	FormatMPEG        ObjectFormat = 0x300B
	FormatASF         ObjectFormat = 0x300C
	FormatQuickTime   ObjectFormat = 0x300D
	FormatEXIFJPEG    ObjectFormat = 0x3801
	FormatBMP         ObjectFormat = 0x3804
	FormatGIF         ObjectFormat = 0x3807
	FormatJFIF        ObjectFormat = 0x3808
	FormatPICT        ObjectFormat = 0x380A
	FormatPNG         ObjectFormat = 0x380B
	FormatTIFF        ObjectFormat = 0x380D
	FormatJP2         ObjectFormat = 0x380F
	FormatJPX         ObjectFormat = 0x3810
	FormatFirmware    ObjectFormat = 0xB802
	FormatWindowsImg  ObjectFormat = 0xB881
	FormatWMA         ObjectFormat = 0xB901
	FormatOGG         ObjectFormat = 0xB902
	FormatAAC         ObjectFormat = 0xB903
	FormatFLAC        ObjectFormat = 0xB906
	FormatWMV         ObjectFormat = 0xB981
	FormatMP4         ObjectFormat = 0xB982
	FormatMP2         ObjectFormat = 0xB983
	FormatVCard3      ObjectFormat = 0xBB83
	FormatVCalendar2  ObjectFormat = 0xBE03
	FormatXML         ObjectFormat = 0xBA82
	FormatDOC         ObjectFormat = 0xBA83
	FormatMHT         ObjectFormat = 0xBA84
	FormatXLS         ObjectFormat = 0xBA85
	FormatPPT         ObjectFormat = 0xBA86
)

var formatNames = map[ObjectFormat]string{
	FormatUndefined:   "UNDEFINED",
	FormatAssociation: "ASSOCIATION",
	FormatScript:      "SCRIPT",
	FormatExecutable:  "EXECUTABLE",
	FormatText:        "TEXT",
	FormatHTML:        "HTML",
	FormatAIFF:        "AIFF",
	FormatWAV:         "WAV",
	FormatMP3:         "MP3",
	FormatAVI:         "AVI",
	FormatMPEG:        "MPEG",
	FormatASF:         "ASF",
	FormatQuickTime:   "QUICKTIME",
	FormatEXIFJPEG:    "EXIF_JPEG",
	FormatBMP:         "BMP",
	FormatGIF:         "GIF",
	FormatJFIF:        "JFIF",
	FormatPICT:        "PICT",
	FormatPNG:         "PNG",
	FormatTIFF:        "TIFF",
	FormatJP2:         "JP2",
	FormatJPX:         "JPX",
	FormatFirmware:    "FIRMWARE",
	FormatWindowsImg:  "WINDOWS_IMAGE",
	FormatWMA:         "WMA",
	FormatOGG:         "OGG",
	FormatAAC:         "AAC",
	FormatFLAC:        "FLAC",
	FormatWMV:         "WMV",
	FormatMP4:         "MP4",
	FormatMP2:         "MP2",
	FormatVCard3:      "VCARD3",
	FormatVCalendar2:  "VCALENDAR2",
	FormatXML:         "XML",
	FormatDOC:         "DOC",
	FormatMHT:         "MHT",
	FormatXLS:         "XLS",
	FormatPPT:         "PPT",
}

// String returns a short format name.
func (f ObjectFormat) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("FORMAT(0x%04X)", uint16(f))
}

// IsAssociation returns true for folder-like objects.
func (f ObjectFormat) IsAssociation() bool {
	return f == FormatAssociation
}

// AssociationType qualifies an association object.
type AssociationType uint16

// Association types.
const (
	AssociationNone          AssociationType = 0x0000
	AssociationGenericFolder AssociationType = 0x0001
)

// extensionFormats maps lower-case file extensions to object formats.
var extensionFormats = map[string]ObjectFormat{
	"wav":  FormatWAV,
	"mp3":  FormatMP3,
	"wma":  FormatWMA,
	"ogg":  FormatOGG,
	"mp4":  FormatMP4,
	"m4a":  FormatMP4,
	"wmv":  FormatWMV,
	"avi":  FormatAVI,
	"mpeg": FormatMPEG,
	"mpg":  FormatMPEG,
	"asf":  FormatASF,
	"qt":   FormatQuickTime,
	"mov":  FormatQuickTime,
	"jpg":  FormatEXIFJPEG,
	"jpeg": FormatEXIFJPEG,
	"jfif": FormatJFIF,
	"tif":  FormatTIFF,
	"tiff": FormatTIFF,
	"bmp":  FormatBMP,
	"gif":  FormatGIF,
	"pic":  FormatPICT,
	"pict": FormatPICT,
	"png":  FormatPNG,
	"wmf":  FormatWindowsImg,
	"ics":  FormatVCalendar2,
	"exe":  FormatExecutable,
	"com":  FormatExecutable,
	"bat":  FormatExecutable,
	"dll":  FormatExecutable,
	"sys":  FormatExecutable,
	"aac":  FormatAAC,
	"mp2":  FormatMP2,
	"flac": FormatFLAC,
	"doc":  FormatDOC,
	"xml":  FormatXML,
	"xls":  FormatXLS,
	"ppt":  FormatPPT,
	"mht":  FormatMHT,
	"jp2":  FormatJP2,
	"jpx":  FormatJPX,
	"bin":  FormatFirmware,
	"vcf":  FormatVCard3,
	"txt":  FormatText,
	"htm":  FormatHTML,
	"html": FormatHTML,
	"aif":  FormatAIFF,
	"aiff": FormatAIFF,
}

// FormatForName guesses the object format from a file name's extension.
// Unknown or missing extensions yield FormatUndefined.
func FormatForName(name string) ObjectFormat {
	ext := strings.TrimPrefix(path.Ext(name), ".")
	if format, ok := extensionFormats[strings.ToLower(ext)]; ok {
		return format
	}
	return FormatUndefined
}
