package inject

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	logindDest    = "org.freedesktop.login1"
	seatPath      = dbus.ObjectPath("/org/freedesktop/login1/seat/seat0")
	seatIface     = "org.freedesktop.login1.Seat"
	sessionIface  = "org.freedesktop.login1.Session"
	propertiesGet = "org.freedesktop.DBus.Properties.Get"
)

// ActiveSeatSession asks logind over the system bus for the owner of the
// active session on seat0.
func ActiveSeatSession(ctx context.Context) (string, uint32, error) {
	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return "", 0, fmt.Errorf("inject: connect system bus: %w", err)
	}
	defer conn.Close()

	v, err := getProperty(ctx, conn.Object(logindDest, seatPath), seatIface, "ActiveSession")
	if err != nil {
		return "", 0, err
	}
	path, err := parseActiveSession(v)
	if err != nil {
		return "", 0, err
	}

	session := conn.Object(logindDest, path)
	v, err = getProperty(ctx, session, sessionIface, "User")
	if err != nil {
		return "", 0, err
	}
	uid, err := parseSessionUser(v)
	if err != nil {
		return "", 0, err
	}
	v, err = getProperty(ctx, session, sessionIface, "Name")
	if err != nil {
		return "", 0, err
	}
	name, ok := v.Value().(string)
	if !ok || name == "" {
		return "", 0, fmt.Errorf("inject: logind session %s has no user name", path)
	}
	return name, uid, nil
}

func getProperty(ctx context.Context, obj dbus.BusObject, iface, prop string) (dbus.Variant, error) {
	var v dbus.Variant
	if err := obj.CallWithContext(ctx, propertiesGet, 0, iface, prop).Store(&v); err != nil {
		return dbus.Variant{}, fmt.Errorf("inject: get %s.%s: %w", iface, prop, err)
	}
	return v, nil
}

// parseActiveSession extracts the object path from the (so) ActiveSession
// property. An empty path means no session is active.
func parseActiveSession(v dbus.Variant) (dbus.ObjectPath, error) {
	fields, ok := v.Value().([]any)
	if !ok || len(fields) != 2 {
		return "", fmt.Errorf("inject: unexpected ActiveSession signature %s", v.Signature())
	}
	path, ok := fields[1].(dbus.ObjectPath)
	if !ok || path == "" || path == "/" {
		return "", fmt.Errorf("inject: no active session on seat0")
	}
	return path, nil
}

// parseSessionUser extracts the uid from the (uo) User property.
func parseSessionUser(v dbus.Variant) (uint32, error) {
	fields, ok := v.Value().([]any)
	if !ok || len(fields) != 2 {
		return 0, fmt.Errorf("inject: unexpected User signature %s", v.Signature())
	}
	uid, ok := fields[0].(uint32)
	if !ok {
		return 0, fmt.Errorf("inject: unexpected uid type %T", fields[0])
	}
	return uid, nil
}
