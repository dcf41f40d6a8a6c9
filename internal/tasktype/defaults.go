package tasktype

import "time"

// Defaults returns the built-in type set seeded into a fresh partition.
func Defaults(owner string, now time.Time) []*TaskType {
	mk := func(id, name, icon string) *TaskType {
		return &TaskType{
			ID:          id,
			Name:        name,
			Icon:        icon,
			Custom:      false,
			Owner:       owner,
			LastUpdated: now,
		}
	}
	return []*TaskType{
		mk("personal", "Personal", "👤"),
		mk("trabajo", "Trabajo", "💼"),
		mk("estudio", "Estudio", "📚"),
		mk("hogar", "Hogar", "🏠"),
		mk("compras", "Compras", "🛒"),
		mk("salud", "Salud", "🏥"),
		mk("otros", "Otros", "📋"),
	}
}
