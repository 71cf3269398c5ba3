package kekbit

import "testing"

func Test_Version_Packs_And_Unpacks_Components(t *testing.T) {
	t.Parallel()

	for i := uint16(1); i < 1024; i++ {
		v := newVersion(i, i, uint32(i))

		if v.major() != i || v.minor() != i || v.patch() != uint32(i) {
			t.Fatalf("version %d: got %d.%d.%d", i, v.major(), v.minor(), v.patch())
		}
	}
}

func Test_Version_Formats_As_Dotted_Triple(t *testing.T) {
	t.Parallel()

	v := newVersion(1, 2, 3)

	if v.String() != "1.2.3" {
		t.Fatalf("String() = %q, want %q", v.String(), "1.2.3")
	}
}

func Test_Version_Compatibility_Is_Ordered(t *testing.T) {
	t.Parallel()

	older := newVersion(0, 9, 5)
	newer := newVersion(1, 1, 0)

	if !latestVersion.isCompatible(older) {
		t.Errorf("latest should read data written by %s", older)
	}

	if !latestVersion.isCompatible(latestVersion) {
		t.Errorf("latest should read its own data")
	}

	if latestVersion.isCompatible(newer) {
		t.Errorf("latest should reject data written by %s", newer)
	}
}

func Test_Version_Survives_U64_Conversion(t *testing.T) {
	t.Parallel()

	v1 := newVersion(1, 2, 3)
	v2 := version(uint64(v1))

	if v1 != v2 {
		t.Fatalf("conversion mismatch: %v != %v", v1, v2)
	}
}
