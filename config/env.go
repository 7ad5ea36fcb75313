package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/golobby/cast"
)

// ApplyEnv overrides fields tagged `env:"NAME"` with PREFIX_NAME variables.
func ApplyEnv(structure any, prefix string) error {
	if prefix == "" {
		return ErrEmptyPrefix
	}
	rv := reflect.ValueOf(structure)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return ErrInvalidStructure
	}
	return processStructFields(rv.Elem(), strings.ToUpper(prefix))
}

func processStructFields(rv reflect.Value, prefix string) error {
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		fieldType := rv.Type().Field(i)

		if err := processField(field, &fieldType, prefix); err != nil {
			return fmt.Errorf("error in field '%s': %w", fieldType.Name, err)
		}
	}
	return nil
}

func processField(field reflect.Value, fieldType *reflect.StructField, prefix string) error {
	switch field.Kind() {
	case reflect.Struct:
		return processStructFields(field, prefix)
	case reflect.Pointer:
		if !field.IsNil() && field.Elem().Kind() == reflect.Struct {
			return processStructFields(field.Elem(), prefix)
		}
		return nil
	default:
		envTag, exists := fieldType.Tag.Lookup("env")
		if !exists {
			return nil
		}
		envName := prefix + "_" + strings.ToUpper(envTag)
		if envValue := os.Getenv(envName); envValue != "" {
			return setFieldValue(field, envValue)
		}
		return nil
	}
}

func setFieldValue(field reflect.Value, strValue string) error {
	convertedValue, err := cast.FromType(strValue, field.Type())
	if err != nil {
		return fmt.Errorf("cannot convert value to type %v: %w", field.Type(), err)
	}
	if !field.CanSet() {
		return ErrFieldCannotBeSet
	}
	field.Set(reflect.ValueOf(convertedValue).Convert(field.Type()))
	return nil
}
