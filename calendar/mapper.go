/*
mapper.go - UI <-> storage category vocabulary mapping

PURPOSE:
  The client vocabulary and the persisted vocabulary drifted apart during an
  early schema change: the two entry/exit permit categories gained an
  _ANTICIPATA suffix in storage while the UI kept the short names. The other
  four categories are spelled identically. This file pins the mapping down as
  an explicit finite bijection so a future seventh category cannot be
  silently mismapped by a string transformation.

SEE ALSO:
  - aggregate.go: classifies raw storage strings into DayInfo flags
*/
package calendar

// UIType is a category name as shown in user-facing controls.
type UIType string

// StorageType is a category name as persisted in the events table.
type StorageType string

const (
	UIFerie           UIType = "FERIE"
	UISmartWorking    UIType = "SMART_WORKING"
	UIPermessoEntrata UIType = "PERMESSO_ENTRATA"
	UIPermessoUscita  UIType = "PERMESSO_USCITA"
	UIMalattia        UIType = "MALATTIA"
	UIPermessoStudio  UIType = "PERMESSO_STUDIO"
)

const (
	StorageFerie           StorageType = "FERIE"
	StorageSmartWorking    StorageType = "SMART_WORKING"
	StoragePermessoEntrata StorageType = "PERMESSO_ENTRATA_ANTICIPATA"
	StoragePermessoUscita  StorageType = "PERMESSO_USCITA_ANTICIPATA"
	StorageMalattia        StorageType = "MALATTIA"
	StoragePermessoStudio  StorageType = "PERMESSO_STUDIO"
)

// UITypes lists the full UI vocabulary in display order.
var UITypes = []UIType{
	UIFerie,
	UISmartWorking,
	UIPermessoEntrata,
	UIPermessoUscita,
	UIMalattia,
	UIPermessoStudio,
}

var uiToStorage = map[UIType]StorageType{
	UIFerie:           StorageFerie,
	UISmartWorking:    StorageSmartWorking,
	UIPermessoEntrata: StoragePermessoEntrata,
	UIPermessoUscita:  StoragePermessoUscita,
	UIMalattia:        StorageMalattia,
	UIPermessoStudio:  StoragePermessoStudio,
}

var storageToUI = map[StorageType]UIType{
	StorageFerie:           UIFerie,
	StorageSmartWorking:    UISmartWorking,
	StoragePermessoEntrata: UIPermessoEntrata,
	StoragePermessoUscita:  UIPermessoUscita,
	StorageMalattia:        UIMalattia,
	StoragePermessoStudio:  UIPermessoStudio,
}

// ToStorage maps a UI category to its persisted form. The second return is
// false for unknown categories.
func ToStorage(t UIType) (StorageType, bool) {
	s, ok := uiToStorage[t]
	return s, ok
}

// ToUI maps a persisted category back to its UI form. The second return is
// false for unknown categories.
func ToUI(t StorageType) (UIType, bool) {
	u, ok := storageToUI[t]
	return u, ok
}

// IsPermesso reports whether the category is hour-denominated: such events
// carry a start time-of-day and a duration in hours instead of a whole-day
// date range.
func IsPermesso(t UIType) bool {
	return t == UIPermessoEntrata || t == UIPermessoUscita || t == UIPermessoStudio
}

// IsStoragePermesso is IsPermesso over the persisted vocabulary.
func IsStoragePermesso(t StorageType) bool {
	u, ok := ToUI(t)
	return ok && IsPermesso(u)
}
